package main

import "github.com/urfave/cli/v3"

var (
	loraDir   string
	logLevel  string
	logFormat string
)

func commonLoraFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "lora-dir",
			Aliases:     []string{"d"},
			Usage:       "path to directory containing .safetensors loras",
			Destination: &loraDir,
		},
	}
}

func commonLogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, text, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}
