package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/urfave/cli/v2"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/release-engineering/starmap-client-go/internal/client"
	"github.com/release-engineering/starmap-client-go/internal/models"
	"github.com/release-engineering/starmap-client-go/internal/provider"
	"github.com/release-engineering/starmap-client-go/internal/state"
	"github.com/release-engineering/starmap-client-go/internal/utils"
)

// commandContext returns the command context carrying a logger configured from --log-level
func commandContext(c *cli.Context) (context.Context, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", c.String("log-level"), err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return slogcontext.NewCtx(ctx, logger), nil
}

func awsOptions(c *cli.Context) []state.AWSOption {
	return []state.AWSOption{
		state.WithProfile(c.String("profile")),
		state.WithRegion(c.String("region")),
	}
}

// newClient builds a client for the server at --url, or an offline one over --content
func newClient(ctx context.Context, c *cli.Context, observe provider.PageObserver) (*client.Client, error) {
	opts := []client.Option{
		client.WithAPIVersion(c.String("api-version")),
		client.WithPageSize(c.Int("page-size")),
		client.WithLogger(slogcontext.FromCtx(ctx)),
	}
	if observe != nil {
		opts = append(opts, client.WithPageObserver(observe))
	}

	if location := c.String("content"); location != "" {
		if c.String("url") != "" {
			return nil, &models.ConfigurationError{Field: "content", Message: "--content and --url are mutually exclusive"}
		}
		store, err := state.Open(ctx, location, awsOptions(c)...)
		if err != nil {
			return nil, err
		}
		policies, err := store.Load(ctx)
		if err != nil {
			return nil, err
		}
		var mode provider.PatternCombination
		switch c.String("match") {
		case "all":
			mode = provider.CombineAll
		case "any":
			mode = provider.CombineAny
		default:
			return nil, &models.ConfigurationError{Field: "match", Message: fmt.Sprintf("expected all or any, got %q", c.String("match"))}
		}
		p, err := provider.NewInMemoryProvider(policies, provider.WithPatternCombination(mode))
		if err != nil {
			return nil, err
		}
		return client.New(append(opts, client.WithProvider(p))...)
	}

	return client.New(append(opts,
		client.WithURL(c.String("url")),
		client.WithRetries(c.Int("retries")),
		client.WithBackoffFactor(time.Duration(c.Float64("backoff")*float64(time.Second))),
		client.WithTimeout(c.Duration("timeout")),
	)...)
}

// selectWorkflow reads --workflow, prompting for it with --interactive. An empty result
// lets the client apply its default.
func selectWorkflow(c *cli.Context) (models.Workflow, error) {
	if w := c.String("workflow"); w != "" {
		return models.ParseWorkflow(w)
	}
	if !c.Bool("interactive") {
		return "", nil
	}

	options := make([]string, 0, len(models.Workflows))
	for _, w := range models.Workflows {
		options = append(options, w.String())
	}
	var choice string
	if err := survey.AskOne(&survey.Select{
		Message: "Select the workflow:",
		Options: options,
		Default: models.WorkflowStratosphere.String(),
	}, &choice); err != nil {
		return "", err
	}
	return models.ParseWorkflow(choice)
}

func queryCommand(c *cli.Context) error {
	ctx, err := commandContext(c)
	if err != nil {
		return err
	}
	workflow, err := selectWorkflow(c)
	if err != nil {
		return err
	}
	params, err := utils.ParseKeyValues(c.StringSlice("param"))
	if err != nil {
		return err
	}
	cl, err := newClient(ctx, c, nil)
	if err != nil {
		return err
	}
	if cl.APIVersion() == models.APIv2 {
		return renderContainer(ctx, c, cl, models.Query{
			Name:     c.String("name"),
			Version:  c.String("version"),
			Workflow: workflow,
			Params:   params,
		})
	}

	var rsp *models.QueryResponse
	if version := c.String("version"); version != "" {
		rsp, err = cl.QueryImage(ctx, c.String("name"), version, workflow, params)
	} else {
		if params == nil {
			params = map[string]string{}
		}
		if workflow != "" {
			params["workflow"] = workflow.String()
		}
		rsp, err = cl.QueryImageByName(ctx, c.String("name"), params)
	}
	if err != nil {
		return err
	}
	return render(c, rsp, queryTable)
}

func queryNVRCommand(c *cli.Context) error {
	ctx, err := commandContext(c)
	if err != nil {
		return err
	}
	workflow, err := selectWorkflow(c)
	if err != nil {
		return err
	}
	cl, err := newClient(ctx, c, nil)
	if err != nil {
		return err
	}
	if cl.APIVersion() == models.APIv2 {
		return renderContainer(ctx, c, cl, models.Query{Image: c.String("image"), Workflow: workflow})
	}
	rsp, err := cl.QueryImageByNVR(ctx, c.String("image"), workflow)
	if err != nil {
		return err
	}
	return render(c, rsp, queryTable)
}

// renderContainer runs an APIv2 query and prints the entities left after the --cloud filter
func renderContainer(ctx context.Context, c *cli.Context, cl *client.Client, q models.Query) error {
	container, err := cl.QueryContainer(ctx, q)
	if err != nil {
		return err
	}
	if cloud := c.String("cloud"); cloud != "" {
		container = &models.QueryResponseContainer{Responses: container.FilterByCloud(cloud)}
	}
	return render(c, container, containerTable)
}

func policiesCommand(c *cli.Context) error {
	ctx, err := commandContext(c)
	if err != nil {
		return err
	}
	filters, err := utils.ParseKeyValues(c.StringSlice("filter"))
	if err != nil {
		return err
	}
	loader := newLoader(c, "Fetching policies")
	cl, err := newClient(ctx, c, loader.Page)
	if err != nil {
		return err
	}

	loader.Start()
	policies, err := cl.ListPolicies(ctx, filters)
	if err != nil {
		loader.StopWithMessage("❌ Failed to fetch policies")
		return err
	}
	loader.StopWithMessage(fmt.Sprintf("✅ Fetched %d policies", len(policies)))
	return render(c, policies, policiesTable)
}

func policyCommand(c *cli.Context) error {
	ctx, cl, err := setup(c)
	if err != nil {
		return err
	}
	p, err := cl.GetPolicy(ctx, c.String("id"))
	if err != nil {
		return err
	}
	return render(c, p, func(p *models.Policy) string { return mappingsTable(p.Mappings) })
}

func mappingsCommand(c *cli.Context) error {
	ctx, cl, err := setup(c)
	if err != nil {
		return err
	}
	mappings, err := cl.ListMappings(ctx, c.String("policy-id"))
	if err != nil {
		return err
	}
	return render(c, mappings, mappingsTable)
}

func mappingCommand(c *cli.Context) error {
	ctx, cl, err := setup(c)
	if err != nil {
		return err
	}
	m, err := cl.GetMapping(ctx, c.String("id"))
	if err != nil {
		return err
	}
	return render(c, m, func(m *models.Mapping) string { return destinationsTable(m.Destinations) })
}

func destinationsCommand(c *cli.Context) error {
	ctx, cl, err := setup(c)
	if err != nil {
		return err
	}
	destinations, err := cl.ListDestinations(ctx, c.String("mapping-id"))
	if err != nil {
		return err
	}
	return render(c, destinations, destinationsTable)
}

func destinationCommand(c *cli.Context) error {
	ctx, cl, err := setup(c)
	if err != nil {
		return err
	}
	d, err := cl.GetDestination(ctx, c.String("id"))
	if err != nil {
		return err
	}
	return render(c, d, func(d *models.Destination) string { return destinationsTable([]models.Destination{*d}) })
}

func setup(c *cli.Context) (context.Context, *client.Client, error) {
	ctx, err := commandContext(c)
	if err != nil {
		return nil, nil, err
	}
	cl, err := newClient(ctx, c, nil)
	if err != nil {
		return nil, nil, err
	}
	return ctx, cl, nil
}

func exportCommand(c *cli.Context) error {
	ctx, err := commandContext(c)
	if err != nil {
		return err
	}
	loader := newLoader(c, "Exporting policies")
	cl, err := newClient(ctx, c, loader.Page)
	if err != nil {
		return err
	}
	out, err := state.Open(ctx, c.String("out"), awsOptions(c)...)
	if err != nil {
		return err
	}

	loader.Start()
	policies, err := cl.Policies(ctx)
	if err != nil {
		loader.StopWithMessage("❌ Failed to fetch policies")
		return err
	}
	if err := out.Save(ctx, policies); err != nil {
		loader.StopWithMessage("❌ Export failed")
		return err
	}
	loader.StopWithMessage(fmt.Sprintf("✅ Exported %d policies to %s", len(policies), out.Location()))
	return nil
}

func pushCommand(c *cli.Context) error {
	ctx, err := commandContext(c)
	if err != nil {
		return err
	}
	src := state.NewFileStore(c.String("file"))
	policies, err := src.Load(ctx)
	if err != nil {
		return err
	}
	dst, err := state.OpenS3Store(ctx, c.String("s3-uri"), awsOptions(c)...)
	if err != nil {
		return err
	}

	if !c.Bool("yes") {
		confirmed := false
		if err := survey.AskOne(&survey.Confirm{
			Message: fmt.Sprintf("Replace the content of %s with %d policies from %s?", dst.Location(), len(policies), src.Location()),
			Default: false,
		}, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Push cancelled.")
			return nil
		}
	}

	if err := dst.Save(ctx, policies); err != nil {
		return err
	}
	fmt.Printf("✅ Pushed %d policies to %s\n", len(policies), dst.Location())
	return nil
}

func historyCommand(c *cli.Context) error {
	ctx, err := commandContext(c)
	if err != nil {
		return err
	}
	store, err := state.OpenS3Store(ctx, c.String("s3-uri"), awsOptions(c)...)
	if err != nil {
		return err
	}
	history, err := store.History(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Printf("No versions stored for %s\n", store.Location())
		return nil
	}
	fmt.Print(historyTable(history))
	return nil
}

func newLoader(c *cli.Context, msg string) *models.Loader {
	if c.Bool("no-progress") || strings.EqualFold(c.String("log-level"), "debug") {
		return models.NewLoader(io.Discard, msg)
	}
	return models.NewLoader(os.Stderr, msg)
}
