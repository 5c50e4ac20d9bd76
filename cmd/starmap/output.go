package main

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/release-engineering/starmap-client-go/internal/models"
	"github.com/release-engineering/starmap-client-go/internal/state"
	"github.com/release-engineering/starmap-client-go/internal/utils"
)

// render prints v as JSON or through asTable depending on --output
func render[T any](c *cli.Context, v T, asTable func(T) string) error {
	switch c.String("output") {
	case "json":
		out, err := utils.PrettyJSON(v)
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "table", "":
		fmt.Print(asTable(v))
	default:
		return fmt.Errorf("unknown output format %q (expected table or json)", c.String("output"))
	}
	return nil
}

func newTable(header table.Row) (table.Writer, *bytes.Buffer) {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(header)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t, &buf
}

func queryTable(rsp *models.QueryResponse) string {
	t, buf := newTable(table.Row{"Provider", "Account", "Destination", "Architecture", "Overwrite", "Restrict", "Tags"})
	for _, provider := range rsp.Providers() {
		for _, d := range rsp.DestinationsFor(provider) {
			t.AppendRow(table.Row{
				provider,
				d.MarketplaceAccount,
				d.Destination,
				d.Architecture,
				models.BoolValue(d.Overwrite),
				restriction(d.Defaults),
				formatTags(d.Tags),
			})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
	})
	t.SetTitle(fmt.Sprintf("%s (%s)", rsp.Name, rsp.Workflow))
	t.Render()
	return buf.String()
}

func containerTable(container *models.QueryResponseContainer) string {
	t, buf := newTable(table.Row{"Name", "Workflow", "Cloud", "Account", "Provider", "Destination", "Architecture", "Overwrite", "Restrict"})
	for _, e := range container.Responses {
		for _, account := range e.AccountNames() {
			for _, d := range e.Mappings[account].Destinations {
				t.AppendRow(table.Row{
					e.Name,
					e.Workflow,
					e.Cloud,
					account,
					d.Provider,
					d.Destination,
					d.Architecture,
					models.BoolValue(d.Overwrite),
					restriction(d.Defaults),
				})
			}
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
		{Number: 3, AutoMerge: true},
		{Number: 4, AutoMerge: true},
	})
	t.Render()
	return buf.String()
}

func policiesTable(policies []models.Policy) string {
	t, buf := newTable(table.Row{"ID", "Name", "Workflow", "Mappings", "Accounts"})
	for _, p := range policies {
		accounts := make([]string, 0, len(p.Mappings))
		for _, m := range p.Mappings {
			accounts = append(accounts, m.MarketplaceAccount)
		}
		t.AppendRow(table.Row{p.ID, p.Name, p.Workflow, len(p.Mappings), strings.Join(accounts, ", ")})
	}
	t.Render()
	return buf.String()
}

func mappingsTable(mappings []models.Mapping) string {
	t, buf := newTable(table.Row{"ID", "Account", "Version fnmatch", "Version regex", "Destinations"})
	for _, m := range mappings {
		t.AppendRow(table.Row{m.ID, m.MarketplaceAccount, m.VersionFnmatch, m.VersionRegexmatch, len(m.Destinations)})
	}
	t.Render()
	return buf.String()
}

func destinationsTable(destinations []models.Destination) string {
	t, buf := newTable(table.Row{"ID", "Provider", "Destination", "Architecture", "Overwrite", "Restrict", "Tags"})
	for _, d := range destinations {
		t.AppendRow(table.Row{
			d.ID,
			d.Provider,
			d.Destination,
			d.Architecture,
			models.BoolValue(d.Overwrite),
			restriction(d.Defaults),
			formatTags(d.Tags),
		})
	}
	t.Render()
	return buf.String()
}

func historyTable(history []state.ContentMetadata) string {
	t, buf := newTable(table.Row{"Version", "Updated", "Size"})
	for _, h := range history {
		t.AppendRow(table.Row{h.Version, h.UpdatedAt.Format("2006-01-02 15:04:05 MST"), h.Size})
	}
	t.Render()
	return buf.String()
}

// restriction summarizes restrict_version/major/minor, e.g. "major=2 minor=1"
func restriction(d models.Defaults) string {
	if !models.BoolValue(d.RestrictVersion) {
		return "-"
	}
	var parts []string
	if d.RestrictMajor != nil {
		parts = append(parts, fmt.Sprintf("major=%d", *d.RestrictMajor))
	}
	if d.RestrictMinor != nil {
		parts = append(parts, fmt.Sprintf("minor=%d", *d.RestrictMinor))
	}
	if len(parts) == 0 {
		return "yes"
	}
	return strings.Join(parts, " ")
}

func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, "\n")
}
