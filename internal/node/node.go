// Package node implements the host-facing LoRA loader node: its input
// schema, its load operation, and its re-evaluation fingerprint.
package node

import (
	"fmt"
	"strconv"

	"github.com/facok/hylora/internal/assets"
	"github.com/facok/hylora/internal/loader"
	"github.com/facok/hylora/internal/logger"
	"github.com/facok/hylora/internal/lora"
	"github.com/facok/hylora/internal/patcher"
)

// Host registration identity.
const (
	ClassName   = "HunyuanVideoLoraLoader"
	DisplayName = "Hunyuan Video LoRA Loader"
	Category    = "loaders/hunyuan"
	Description = "Loads a HunyuanVideo LoRA, optionally restricted to single or double blocks"
)

// FloatSpec describes a bounded float input the host UI renders.
type FloatSpec struct {
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
}

// InputSpec is the node's input schema.
type InputSpec struct {
	LoraNames  []string  `json:"lora_names"`
	Strength   FloatSpec `json:"strength"`
	BlocksType []string  `json:"blocks_type"`
}

// LoraLoader is one loader node instance. Each instance owns its own
// single-slot load cache.
type LoraLoader struct {
	registry *assets.Registry
	loader   *loader.Loader
	log      logger.Logger
}

// New creates a node over a registry and a weight deserializer.
func New(registry *assets.Registry, des loader.Deserializer, log logger.Logger) *LoraLoader {
	if log == nil {
		log = logger.Default()
	}
	return &LoraLoader{
		registry: registry,
		loader:   loader.New(des, log),
		log:      log,
	}
}

// InputSpec reports the schema the host uses to build the node's UI. The
// LoRA list reflects the registry at call time.
func (n *LoraLoader) InputSpec() (InputSpec, error) {
	entries, err := n.registry.List()
	if err != nil {
		return InputSpec{}, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return InputSpec{
		LoraNames: names,
		Strength: FloatSpec{
			Default: patcher.StrengthDefault,
			Min:     patcher.StrengthMin,
			Max:     patcher.StrengthMax,
			Step:    patcher.StrengthStep,
		},
		BlocksType: lora.BlockSelectors(),
	}, nil
}

// Load resolves and loads the named LoRA, converts it to canonical format,
// filters it to the selected blocks, and applies it to the model at the
// given strength. An empty name is a pass-through. The returned handle is
// the input handle whenever the patch changed nothing.
func (n *LoraLoader) Load(model *patcher.Model, name string, strength float64, selector lora.BlockSelector) (*patcher.Model, patcher.Result, error) {
	if name == "" {
		return model, patcher.Result{}, nil
	}
	if err := patcher.ValidateStrength(strength); err != nil {
		return nil, patcher.Result{}, err
	}
	if _, err := lora.ParseBlockSelector(string(selector)); err != nil {
		return nil, patcher.Result{}, err
	}

	path, err := n.registry.Resolve(name)
	if err != nil {
		return nil, patcher.Result{}, err
	}
	weights, err := n.loader.Load(path)
	if err != nil {
		return nil, patcher.Result{}, fmt.Errorf("load lora %s: %w", name, err)
	}

	converted := lora.ConvertMusubi(weights, n.log)
	filtered := lora.FilterBlocks(converted, selector)

	patched, res, err := patcher.Apply(model, filtered, strength, n.log)
	if err != nil {
		return nil, patcher.Result{}, fmt.Errorf("apply lora %s: %w", name, err)
	}
	n.log.Info("lora applied",
		"lora", name,
		"strength", strength,
		"blocks", string(selector),
		"applied", res.Applied,
		"skipped", res.Skipped,
	)
	return patched, res, nil
}

// Fingerprint is the node's re-evaluation key: it changes exactly when one
// of the three cache-relevant inputs changes.
func (n *LoraLoader) Fingerprint(name string, strength float64, selector lora.BlockSelector) string {
	return name + "_" + strconv.FormatFloat(strength, 'g', -1, 64) + "_" + string(selector)
}
