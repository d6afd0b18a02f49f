// The buildgate-trigger command submits a repository event to the API, used
// for manual dispatch and local testing. Manual dispatch requires a reason.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/buildgate/buildgate/pkg/log"
	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/web"
)

const requestTimeout = 30 * time.Second

func main() {
	command := &cli.Command{
		Name:                  "buildgate-trigger",
		Usage:                 "Submit a repository event to the Buildgate API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Base URL of the Buildgate API",
				Value:   "http://localhost:9091",
				Sources: cli.EnvVars("BUILDGATE_API_URL"),
			},
			&cli.StringFlag{
				Name:     "event",
				Usage:    "Event kind (push, pull_request, manual)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "ref",
				Usage:    "Git ref the event targets",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "sha",
				Usage:    "Commit SHA of the event",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "owner",
				Usage:    "Repository owner",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "repository",
				Usage:    "Repository name",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "tag",
				Usage: "The ref is a tag",
			},
			&cli.BoolFlag{
				Name:  "fork",
				Usage: "The event originates from a fork",
			},
			&cli.StringFlag{
				Name:  "reason",
				Usage: "Reason for a manual dispatch",
			},
			&cli.StringFlag{
				Name:  "workflow",
				Usage: "Workflow name (defaults to the container pipeline)",
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

			request := web.TriggerEventRequest{
				Event:        command.String("event"),
				Ref:          command.String("ref"),
				SHA:          command.String("sha"),
				Owner:        command.String("owner"),
				Repository:   command.String("repository"),
				IsTag:        command.Bool("tag"),
				Fork:         command.Bool("fork"),
				Reason:       command.String("reason"),
				WorkflowName: command.String("workflow"),
			}

			if request.Event == string(models.EventKindManual) && request.Reason == "" {
				return fmt.Errorf("manual dispatch requires --reason")
			}

			return submit(ctx, command.String("api-url"), request)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func submit(ctx context.Context, apiURL string, request web.TriggerEventRequest) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/v1/events", bytes.NewReader(payload))
	if err != nil {
		return err
	}

	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := http.DefaultClient.Do(httpRequest)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, string(body))

	if response.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("API rejected the event with status %d", response.StatusCode)
	}

	return nil
}
