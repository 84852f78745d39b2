package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/facok/hylora/internal/assets"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls", "loras"},
		Usage:   "List available LoRA files",
		Flags:   commonLoraFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())

			registry, err := assets.NewRegistry(loraDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			entries, err := registry.List()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(entries) == 0 {
				fmt.Printf("no loras found in %s\n", registry.Dir())
				return nil
			}

			fmt.Printf("Loras in %s:\n\n", registry.Dir())
			for _, e := range entries {
				fmt.Printf("  %-50s %8s\n", e.Name, formatSize(e.Size))
			}
			fmt.Printf("\n%d lora(s) found\n", len(entries))
			return nil
		},
	}
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
