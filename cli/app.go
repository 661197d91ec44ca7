// Package cli contains the pushpull command line: simulating scene files, validating them and
// describing the constraint node.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"
	generalFlagJSON    = "json"

	sceneFlagPath = "scene"

	simulateFlagStart = "start"
	simulateFlagEnd   = "end"
	simulateFlagStep  = "step"
	simulateFlagPlot  = "plot"

	validateFlagWatch = "watch"

	schemaFlagSceneFormat = "scene-format"
)

var sceneFlag = &cli.StringFlag{
	Name:     sceneFlagPath,
	Aliases:  []string{"s"},
	Usage:    "load the scene from `FILE` (YAML or JSON)",
	Required: true,
}

var app = &cli.App{
	Name:            "pushpull",
	Usage:           "build and evaluate push/pull distance constraints",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  generalFlagLogFile,
			Usage: "also write logs to `FILE`, rotating it as it grows",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "simulate",
			Usage:     "build a scene and print where every constrained object ends up, frame by frame",
			UsageText: "pushpull simulate --scene <file> [--start <frame>] [--end <frame>] [--step <frames>] [--json] [--plot <file>]",
			Flags: []cli.Flag{
				sceneFlag,
				&cli.Float64Flag{
					Name:  simulateFlagStart,
					Usage: "first frame to evaluate, defaults to the scene's time",
				},
				&cli.Float64Flag{
					Name:  simulateFlagEnd,
					Usage: "last frame to evaluate, defaults to the start frame",
				},
				&cli.Float64Flag{
					Name:  simulateFlagStep,
					Value: 1,
					Usage: "frames between evaluations",
				},
				&cli.BoolFlag{
					Name:  generalFlagJSON,
					Usage: "print JSON instead of a table",
				},
				&cli.StringFlag{
					Name:  simulateFlagPlot,
					Usage: "save a plot of each constraint's distance to its target over time to `FILE` (.png, .svg, .pdf)",
				},
			},
			Action: SimulateAction,
		},
		{
			Name:      "validate",
			Usage:     "check a scene file and report every problem found",
			UsageText: "pushpull validate --scene <file> [--watch]",
			Flags: []cli.Flag{
				sceneFlag,
				&cli.BoolFlag{
					Name:  validateFlagWatch,
					Usage: "keep running and validate again whenever the file changes",
				},
			},
			Action: ValidateAction,
		},
		{
			Name:  "schema",
			Usage: "print the attributes of the constraint node",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  schemaFlagSceneFormat,
					Usage: "print the JSON schema of scene files instead",
				},
			},
			Action: SchemaAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
