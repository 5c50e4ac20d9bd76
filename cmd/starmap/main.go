package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/release-engineering/starmap-client-go/internal/client"
	"github.com/release-engineering/starmap-client-go/internal/transport"
)

func main() {
	app := &cli.App{
		Name:  "starmap",
		Usage: "Resolve marketplace publishing destinations from StArMap",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "StArMap server URL",
				EnvVars: []string{"STARMAP_URL"},
			},
			&cli.StringFlag{
				Name:    "api-version",
				Usage:   "StArMap API version",
				Value:   transport.DefaultAPIVersion,
				EnvVars: []string{"STARMAP_API_VERSION"},
			},
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Number of policies requested per page",
				Value: client.DefaultPageSize,
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Number of retries for failed requests",
				Value: transport.DefaultRetries,
			},
			&cli.Float64Flag{
				Name:  "backoff",
				Usage: "Backoff factor in seconds between retries",
				Value: transport.DefaultBackoffFactor.Seconds(),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: transport.DefaultTimeout,
			},
			&cli.StringFlag{
				Name:  "content",
				Usage: "Resolve offline against a local JSON/YAML content file or s3://bucket/key",
			},
			&cli.StringFlag{
				Name:  "match",
				Usage: "How version_fnmatch and version_regexmatch combine offline (all, any)",
				Value: "all",
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "AWS credential profile name for s3:// content",
				EnvVars: []string{"AWS_PROFILE"},
			},
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region for s3:// content",
				EnvVars: []string{"AWS_REGION"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "warn",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Do not show a progress spinner while listing",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "query",
				Usage: "Resolve the destinations of an image by name",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Image name", Required: true},
					&cli.StringFlag{Name: "version", Usage: "Image version (optional, the server picks one when absent)"},
					workflowFlag(),
					interactiveFlag(),
					&cli.StringSliceFlag{Name: "param", Usage: "Extra query parameter as key=value"},
					cloudFlag(),
					outputFlag(),
				},
				Action: queryCommand,
			},
			{
				Name:  "query-nvr",
				Usage: "Resolve the destinations of an image by NVR",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "image", Usage: "Image NVR, e.g. product-1.0-1.raw.xz", Required: true},
					workflowFlag(),
					interactiveFlag(),
					cloudFlag(),
					outputFlag(),
				},
				Action: queryNVRCommand,
			},
			{
				Name:  "policies",
				Usage: "List policies",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "filter", Usage: "Server side filter as key=value (e.g. name=foo, workflow=community)"},
					outputFlag(),
				},
				Action: policiesCommand,
			},
			{
				Name:  "policy",
				Usage: "Show a policy",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Policy ID", Required: true},
					outputFlag(),
				},
				Action: policyCommand,
			},
			{
				Name:  "mappings",
				Usage: "List the mappings of a policy",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "policy-id", Usage: "Policy ID", Required: true},
					outputFlag(),
				},
				Action: mappingsCommand,
			},
			{
				Name:  "mapping",
				Usage: "Show a mapping",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Mapping ID", Required: true},
					outputFlag(),
				},
				Action: mappingCommand,
			},
			{
				Name:  "destinations",
				Usage: "List the destinations of a mapping",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mapping-id", Usage: "Mapping ID", Required: true},
					outputFlag(),
				},
				Action: destinationsCommand,
			},
			{
				Name:  "destination",
				Usage: "Show a destination",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Destination ID", Required: true},
					outputFlag(),
				},
				Action: destinationCommand,
			},
			{
				Name:  "content",
				Usage: "Manage offline policy content",
				Subcommands: []*cli.Command{
					{
						Name:  "export",
						Usage: "Write every policy of the current source to a file or s3://bucket/key",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "out", Usage: "Destination file (.json, .yaml) or s3://bucket/key", Required: true},
						},
						Action: exportCommand,
					},
					{
						Name:  "push",
						Usage: "Validate a local content file and upload it to S3",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Usage: "Local content file", Required: true},
							&cli.StringFlag{Name: "s3-uri", Usage: "Target s3://bucket/key", Required: true},
							&cli.BoolFlag{Name: "yes", Usage: "Do not ask for confirmation"},
						},
						Action: pushCommand,
					},
					{
						Name:  "history",
						Usage: "List the versions previously pushed to s3://bucket/key",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "s3-uri", Usage: "s3://bucket/key", Required: true},
						},
						Action: historyCommand,
					},
				},
			},
		},
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func workflowFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "workflow",
		Usage: "Workflow (stratosphere, community)",
	}
}

func cloudFlag() cli.Flag {
	return &cli.StringFlag{Name: "cloud", Usage: "Only show this cloud (API v2)"}
}

func interactiveFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "interactive",
		Usage: "Prompt for the workflow when --workflow is not set",
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output format (table, json)",
		Value:   "table",
	}
}
