package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyJSON(t *testing.T) {
	out, err := PrettyJSON(map[string]any{"name": "sample", "clouds": map[string]any{"aws": []string{}}})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"clouds\": {\n    \"aws\": []\n  },\n  \"name\": \"sample\"\n}", out)

	_, err = PrettyJSON(make(chan int))
	require.Error(t, err)
}

func TestParseKeyValues(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", in: nil, want: nil},
		{name: "pairs", in: []string{"name=foo", "workflow=community"}, want: map[string]string{"name": "foo", "workflow": "community"}},
		{name: "value with equals", in: []string{"q=a=b"}, want: map[string]string{"q": "a=b"}},
		{name: "empty value", in: []string{"version="}, want: map[string]string{"version": ""}},
		{name: "later wins", in: []string{"a=1", "a=2"}, want: map[string]string{"a": "2"}},
		{name: "missing separator", in: []string{"name"}, wantErr: true},
		{name: "missing key", in: []string{"=x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeyValues(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
