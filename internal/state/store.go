// Package state loads and saves StArMap policy content used for offline resolution
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// Format is the serialization of a content document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file name or object key extension. JSON is the default.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ContentMetadata describes a stored content snapshot
type ContentMetadata struct {
	Version   string    `json:"version" yaml:"version"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Policies  int       `json:"policies" yaml:"policies"`
	Size      int64     `json:"size,omitempty" yaml:"size,omitempty"`
}

// Snapshot is the document written by Save. Load also accepts a bare list of policies.
type Snapshot struct {
	Metadata ContentMetadata `json:"metadata" yaml:"metadata"`
	Policies []models.Policy `json:"policies" yaml:"policies"`
}

// snapshotDocument tells a missing policies key apart from an empty list
type snapshotDocument struct {
	Metadata ContentMetadata  `json:"metadata" yaml:"metadata"`
	Policies *[]models.Policy `json:"policies" yaml:"policies"`
}

var errMissingPolicies = errors.New("document has no policies key")

// Store is a source of policy content
type Store interface {
	// Load reads and validates the stored policies
	Load(ctx context.Context) ([]models.Policy, error)

	// Save validates and writes policies, replacing the stored content
	Save(ctx context.Context, policies []models.Policy) error

	// Location identifies the store in messages, e.g. a path or s3:// URI
	Location() string
}

// Decode parses a content document: either a Snapshot or a bare list of policies
func Decode(data []byte, format Format) ([]models.Policy, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &models.DecodeError{Context: "content", Content: "", Cause: fmt.Errorf("empty document")}
	}

	var policies []models.Policy
	switch format {
	case FormatYAML:
		var doc snapshotDocument
		if err := yaml.Unmarshal(trimmed, &doc); err == nil {
			if doc.Policies == nil {
				return nil, &models.DecodeError{Context: "yaml content", Content: string(trimmed), Cause: errMissingPolicies}
			}
			policies = *doc.Policies
		} else if err := yaml.Unmarshal(trimmed, &policies); err != nil {
			return nil, &models.DecodeError{Context: "yaml content", Content: string(trimmed), Cause: err}
		}
	default:
		if trimmed[0] == '{' {
			var doc snapshotDocument
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, &models.DecodeError{Context: "json content", Content: string(trimmed), Cause: err}
			}
			if doc.Policies == nil {
				return nil, &models.DecodeError{Context: "json content", Content: string(trimmed), Cause: errMissingPolicies}
			}
			policies = *doc.Policies
		} else if err := json.Unmarshal(trimmed, &policies); err != nil {
			return nil, &models.DecodeError{Context: "json content", Content: string(trimmed), Cause: err}
		}
	}

	if err := models.ValidateContent(policies); err != nil {
		return nil, fmt.Errorf("invalid content: %w", err)
	}
	return policies, nil
}

// Encode renders policies as a Snapshot document
func Encode(policies []models.Policy, format Format, now time.Time) ([]byte, ContentMetadata, error) {
	if err := models.ValidateContent(policies); err != nil {
		return nil, ContentMetadata{}, fmt.Errorf("invalid content: %w", err)
	}
	if policies == nil {
		policies = []models.Policy{}
	}
	snap := Snapshot{
		Metadata: ContentMetadata{
			Version:   fmt.Sprintf("v%d", now.Unix()),
			UpdatedAt: now.UTC(),
			Policies:  len(policies),
		},
		Policies: policies,
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(snap)
	default:
		data, err = json.MarshalIndent(snap, "", "  ")
	}
	if err != nil {
		return nil, ContentMetadata{}, fmt.Errorf("failed to marshal content: %w", err)
	}
	snap.Metadata.Size = int64(len(data))
	return data, snap.Metadata, nil
}
