package lora

import (
	"math"
	"strings"

	"github.com/facok/hylora/internal/logger"
)

// musubiPrefix marks keys written by Musubi Tuner. Its presence on any key
// identifies the whole file as Musubi format.
const musubiPrefix = "lora_unet_"

// canonicalPrefix is the prefix expected by the rest of the pipeline.
const canonicalPrefix = "diffusion_model"

// moduleNameRules rewrite a Musubi flat module name into the canonical
// dotted hierarchy. The rules are applied in order: the first turns every
// underscore into a dot, the rest restore the markers whose underscores are
// structural rather than hierarchical. More specific block markers come
// before the short stream/attention markers they contain.
var moduleNameRules = [...]struct{ from, to string }{
	{"_", "."},
	{"double.blocks.", "double_blocks."},
	{"single.blocks.", "single_blocks."},
	{"img.", "img_"},
	{"txt.", "txt_"},
	{"attn.", "attn_"},
}

func musubiModuleName(name string) string {
	for _, rule := range moduleNameRules {
		name = strings.ReplaceAll(name, rule.from, rule.to)
	}
	return name
}

// IsMusubi reports whether the mapping uses the Musubi Tuner naming scheme.
func IsMusubi(w *Weights) bool {
	for key := range w.All() {
		if strings.HasPrefix(key, musubiPrefix) {
			return true
		}
	}
	return false
}

// ConvertMusubi converts a Musubi Tuner format mapping to the canonical
// diffusers naming scheme, folding each module's alpha into its weights.
// A mapping already in canonical format is returned as-is.
//
// Because the low-rank product applies alpha/dim once across both factors,
// each factor absorbs sqrt(alpha/dim). Keys matching neither projection
// role are dropped with a diagnostic; modules without an alpha entry stay
// unscaled with a diagnostic. Distinct input keys never map to the same
// output key in well-formed files; if they do, the last one wins.
func ConvertMusubi(w *Weights, log logger.Logger) *Weights {
	if !IsMusubi(w) {
		log.Debug("loading diffusers format lora")
		return w
	}

	alphas := scanAlphas(w)
	log.Info("loading musubi tuner format lora", "keys", w.Len(), "alphas", len(alphas))

	out := NewWeights()
	for key, weight := range w.All() {
		if !strings.HasPrefix(key, musubiPrefix) || strings.Contains(key, "alpha") {
			continue
		}
		moduleKey, _, _ := strings.Cut(key, ".")
		moduleName := musubiModuleName(strings.TrimPrefix(moduleKey, musubiPrefix))

		var newKey string
		var dim int
		switch {
		case strings.Contains(key, "lora_down"):
			newKey = canonicalPrefix + "." + moduleName + ".lora_A.weight"
			dim = weight.Dim(0)
		case strings.Contains(key, "lora_up"):
			newKey = canonicalPrefix + "." + moduleName + ".lora_B.weight"
			dim = weight.Dim(1)
		default:
			log.Warn("unexpected key in musubi format lora", "key", key)
			continue
		}
		if dim <= 0 {
			log.Warn("unexpected tensor shape in musubi format lora", "key", key, "shape", weight.Shape)
			continue
		}

		if alpha, ok := alphas[moduleKey]; ok {
			weight = weight.Scale(math.Sqrt(alpha / float64(dim)))
		} else {
			log.Warn("missing alpha for module", "module", moduleKey)
		}
		out.Set(newKey, weight)
	}
	return out
}

// scanAlphas builds the per-module alpha table. It runs to completion
// before any key is rewritten, so every rescale sees the full table.
func scanAlphas(w *Weights) map[string]float64 {
	alphas := make(map[string]float64)
	for key, value := range w.All() {
		if !strings.HasPrefix(key, musubiPrefix) {
			continue
		}
		moduleKey, _, _ := strings.Cut(key, ".")
		if _, seen := alphas[moduleKey]; seen || !strings.Contains(key, "alpha") {
			continue
		}
		if alpha, err := value.Scalar(); err == nil {
			alphas[moduleKey] = alpha
		}
	}
	return alphas
}
