package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var configPath string

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, c",
		Usage:       "path to the YAML configuration file",
		EnvVar:      "TASKBOARD_CONFIG",
		Destination: &configPath,
	},
}

func main() {
	app := cli.App{
		Name:      "taskboard",
		HelpName:  "taskboard",
		Usage:     "Task boards with recurring tasks.",
		Version:   "v0.1.0",
		UsageText: "taskboard [--config file] <command> [arguments...]",
		Flags:     globalFlags,
		Commands: []cli.Command{
			{
				Name:   "serve",
				Usage:  "run the engine, the redrive schedule and the Telegram bot",
				Action: serve,
			},
			{
				Name:      "complete",
				Usage:     "mark a task as done and materialize its next occurrence",
				ArgsUsage: "<task-id>",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "user, u", Usage: "id of the completing user"},
				},
				Action: complete,
			},
			{
				Name:      "next",
				Usage:     "print the next due date of a recurrence rule",
				ArgsUsage: "<rule-json>",
				Description: `Evaluates a rule the same way the engine does.

Example:
        taskboard next --from 2025-06-02 '{"frequency":"weekly","interval":1,"daysOfWeek":[1,3,5]}'
`,
				Flags: []cli.Flag{
					cli.StringFlag{Name: "from, f", Usage: "completed due date (YYYY-MM-DD), today when empty"},
				},
				Action: next,
			},
			{
				Name:   "redrive",
				Usage:  "process pending and failed completion events once",
				Action: redrive,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "taskboard: %s\n", err.Error())
		os.Exit(1)
	}
}
