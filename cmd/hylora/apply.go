package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/facok/hylora/internal/assets"
	"github.com/facok/hylora/internal/loader"
	"github.com/facok/hylora/internal/lora"
	"github.com/facok/hylora/internal/node"
	"github.com/facok/hylora/internal/patcher"
	"github.com/facok/hylora/internal/safetensors"
)

func applyCmd() *cli.Command {
	var (
		modelPath  string
		loraName   string
		strength   float64
		blocksType string
		outPath    string
	)

	return &cli.Command{
		Name:  "apply",
		Usage: "Apply a LoRA to a base model and write the patched model",
		Flags: append(append(commonLoraFlags(), commonLogFlags()...),
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to the base model .safetensors file",
				Required:    true,
				Destination: &modelPath,
			},
			&cli.StringFlag{
				Name:        "lora",
				Aliases:     []string{"l"},
				Usage:       "lora name within the lora directory",
				Destination: &loraName,
			},
			&cli.Float64Flag{
				Name:        "strength",
				Aliases:     []string{"s"},
				Usage:       "lora strength",
				Value:       patcher.StrengthDefault,
				Destination: &strength,
			},
			&cli.StringFlag{
				Name:        "blocks-type",
				Aliases:     []string{"b"},
				Usage:       "blocks to apply (all, single_blocks, double_blocks)",
				Value:       string(lora.BlocksAll),
				Destination: &blocksType,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path for the patched model",
				Required:    true,
				Destination: &outPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyApplyConfig(cmd, LoadConfig(), &strength)
			log := buildLogger()

			selector, err := lora.ParseBlockSelector(blocksType)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			registry, err := assets.NewRegistry(loraDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			loraName, err = resolveLoraName(loraName, registry, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			model, err := patcher.LoadModel(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			log.Info("base model loaded", "path", modelPath, "weights", len(model.Keys()))

			n := node.New(registry, loader.DeserializerFunc(safetensors.LoadWeights), log)
			patched, res, err := n.Load(model, loraName, strength, selector)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if patched == model {
				log.Warn("lora changed nothing; output not written",
					"lora", loraName, "blocks", blocksType)
				return nil
			}

			if err := patched.Save(outPath); err != nil {
				return cli.Exit(fmt.Sprintf("error: save output: %v", err), 1)
			}
			log.Info("patched model written",
				"path", outPath, "applied", res.Applied, "skipped", res.Skipped)
			return nil
		},
	}
}
