// The buildgate-gate command evaluates the aggregate pass/fail signal from
// job statuses supplied on the command line and exits non-zero on the failing
// path, so a branch-protection rule can require this single check.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/buildgate/buildgate/pkg/gate"
	"github.com/buildgate/buildgate/pkg/log"
	"github.com/buildgate/buildgate/pkg/models"
)

func main() {
	command := &cli.Command{
		Name:                  "buildgate-gate",
		Usage:                 "Aggregate job statuses into a single pass/fail exit code",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Job status as name=status (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "cancelled",
				Usage:   "The run itself was cancelled",
				Sources: cli.EnvVars("RUN_CANCELLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			statuses, err := parseStatuses(command.StringSlice("status"))
			if err != nil {
				return err
			}

			outcome := gate.Decide(command.Bool("cancelled"), statuses)

			fmt.Fprintln(os.Stdout, outcome.Reason)

			if !outcome.Passed {
				return cli.Exit("", outcome.ExitCode())
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func parseStatuses(pairs []string) (map[string]models.JobStatus, error) {
	statuses := make(map[string]models.JobStatus, len(pairs))

	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid status %q, expected name=status", pair)
		}

		status := models.JobStatus(value)
		if !status.IsTerminal() {
			return nil, fmt.Errorf("invalid status %q for job %s, expected a terminal status", value, name)
		}

		statuses[name] = status
	}

	return statuses, nil
}
