package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/facok/hylora/internal/assets"
	"github.com/facok/hylora/internal/logger"
	"github.com/facok/hylora/internal/lora"
	"github.com/facok/hylora/internal/safetensors"
)

func inspectCmd() *cli.Command {
	var (
		loraName   string
		showKeys   bool
		showAlphas bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Show format, blocks, and keys of a LoRA file",
		Flags: append(commonLoraFlags(),
			&cli.StringFlag{
				Name:        "lora",
				Aliases:     []string{"l"},
				Usage:       "lora name within the lora directory",
				Destination: &loraName,
			},
			&cli.BoolFlag{
				Name:        "keys",
				Usage:       "list converted keys",
				Destination: &showKeys,
			},
			&cli.BoolFlag{
				Name:        "alphas",
				Usage:       "list alpha entries",
				Destination: &showAlphas,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())

			registry, err := assets.NewRegistry(loraDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			path, err := registry.Resolve(loraName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			weights, err := safetensors.LoadWeights(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			format := "diffusers"
			if lora.IsMusubi(weights) {
				format = "musubi"
			}
			fmt.Printf("file:    %s\n", path)
			fmt.Printf("format:  %s\n", format)
			fmt.Printf("tensors: %d\n", weights.Len())

			if showAlphas {
				for _, key := range weights.Keys() {
					if !strings.HasSuffix(key, ".alpha") {
						continue
					}
					if v, ok := weights.Get(key); ok && v.IsScalar() {
						alpha, _ := v.Scalar()
						fmt.Printf("  %s = %g\n", key, alpha)
					}
				}
			}

			converted := lora.ConvertMusubi(weights, logger.Discard())
			fmt.Printf("\nconverted keys: %d\n", converted.Len())
			for _, selector := range []lora.BlockSelector{lora.BlocksSingle, lora.BlocksDouble} {
				count := lora.FilterBlocks(converted, selector).Len()
				fmt.Printf("  %-13s %d\n", string(selector)+":", count)
			}

			if showKeys {
				fmt.Println()
				keys := converted.Keys()
				sort.Strings(keys)
				for _, key := range keys {
					t, _ := converted.Get(key)
					fmt.Printf("  %-70s %v\n", key, t.Shape)
				}
			}
			return nil
		},
	}
}
