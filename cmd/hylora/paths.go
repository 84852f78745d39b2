package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/facok/hylora/internal/assets"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolveLoraName picks a LoRA when none was given on the command line:
// one match is used directly, several prompt an interactive selection.
func resolveLoraName(nameFlag string, registry *assets.Registry, stdin io.Reader, stderr io.Writer) (string, error) {
	nameFlag = strings.TrimSpace(nameFlag)
	if nameFlag != "" {
		return nameFlag, nil
	}

	entries, err := registry.List()
	if err != nil {
		return "", err
	}
	switch len(entries) {
	case 0:
		return "", fmt.Errorf("no .safetensors loras found in %s", registry.Dir())
	case 1:
		_, _ = fmt.Fprintf(stderr, "using lora %s\n", entries[0].Name)
		return entries[0].Name, nil
	default:
		if !stdinIsTTY() {
			return "", fmt.Errorf(
				"multiple loras found in %s but stdin is not interactive; set --lora",
				registry.Dir(),
			)
		}
		return selectLoraInteractively(registry.Dir(), entries, stdin, stderr)
	}
}

func selectLoraInteractively(dir string, entries []assets.Entry, stdin io.Reader, stderr io.Writer) (string, error) {
	_, _ = fmt.Fprintf(stderr, "select a lora from %s\n", dir)
	for i, e := range entries {
		_, _ = fmt.Fprintf(stderr, "%d. %s\n", i+1, e.Name)
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "enter selection [1-%d]: ", len(entries))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin; set --lora")
			}
			continue
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(entries) {
			_, _ = fmt.Fprintf(stderr, "invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin; set --lora")
			}
			continue
		}
		return entries[idx-1].Name, nil
	}
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
