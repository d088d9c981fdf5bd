// Package main is the entry point for the moderator load test binary. It
// publishes synthetic chat traffic to NATS and, unless a real gateway is
// attached, answers the moderator's platform requests itself.
//
// Usage:
//
//	loadtest flood [options]
package main

import (
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "loadtest",
		Usage: "load tests for the chat moderator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Value:   "nats://localhost:4222",
				EnvVars: []string{"NATS_URL"},
			},
			&cli.StringFlag{
				Name:    "bot-token",
				EnvVars: []string{"BOT_TOKEN"},
			},
			&cli.StringFlag{
				Name:  "metrics-url",
				Usage: "moderator metrics endpoint to scrape; empty disables scraping",
				Value: "http://localhost:9100/metrics",
			},
		},
		Commands: []*cli.Command{floodCmd},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}
