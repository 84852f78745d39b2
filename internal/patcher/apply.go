package patcher

import (
	"fmt"
	"strings"

	"github.com/facok/hylora/internal/logger"
	"github.com/facok/hylora/internal/lora"
	"github.com/facok/hylora/internal/tensor"
)

const (
	loraASuffix = ".lora_A.weight"
	loraBSuffix = ".lora_B.weight"
)

// Result summarises one patch application.
type Result struct {
	Applied int
	Skipped int
}

type pair struct {
	a, b  tensor.Tensor
	hasA  bool
	hasB  bool
	order int
}

// Apply adds the low-rank deltas in a canonical-format weight mapping to
// the model at the given strength and returns the patched handle. Each
// module contributes strength * (lora_B @ lora_A) to its base weight.
// Modules whose base weight is missing or shape-incompatible are skipped
// with a diagnostic. When nothing applies, the original handle is returned
// unchanged.
func Apply(m *Model, w *lora.Weights, strength float64, log logger.Logger) (*Model, Result, error) {
	if log == nil {
		log = logger.Default()
	}

	pairs := make(map[string]*pair)
	modules := make([]string, 0)
	for key, value := range w.All() {
		module, role, ok := splitModuleKey(key)
		if !ok {
			log.Warn("ignoring non-lora key in patch", "key", key)
			continue
		}
		p := pairs[module]
		if p == nil {
			p = &pair{order: len(modules)}
			pairs[module] = p
			modules = append(modules, module)
		}
		if role == roleA {
			p.a, p.hasA = value, true
		} else {
			p.b, p.hasB = value, true
		}
	}

	var res Result
	replaced := make(map[string]tensor.Tensor)
	for _, module := range modules {
		p := pairs[module]
		if !p.hasA || !p.hasB {
			log.Warn("incomplete lora pair", "module", module)
			res.Skipped++
			continue
		}
		baseKey := module + ".weight"
		base, ok := m.Weight(baseKey)
		if !ok {
			log.Warn("no base weight for lora module", "module", module)
			res.Skipped++
			continue
		}
		delta, err := tensor.MatMul(p.b, p.a)
		if err != nil {
			log.Warn("lora factors do not compose", "module", module, "error", err)
			res.Skipped++
			continue
		}
		patched, err := tensor.AddScaled(base, delta, strength)
		if err != nil {
			log.Warn("lora delta does not fit base weight", "module", module, "error", err)
			res.Skipped++
			continue
		}
		replaced[baseKey] = patched
		res.Applied++
	}

	if res.Applied == 0 {
		return m, res, nil
	}
	return m.withWeights(replaced), res, nil
}

type role int

const (
	roleA role = iota
	roleB
)

func splitModuleKey(key string) (string, role, bool) {
	if module, ok := strings.CutSuffix(key, loraASuffix); ok {
		return module, roleA, true
	}
	if module, ok := strings.CutSuffix(key, loraBSuffix); ok {
		return module, roleB, true
	}
	return "", 0, false
}

// Strength bounds accepted by the patching surface, mirroring the host UI
// schema.
const (
	StrengthMin     = -10.0
	StrengthMax     = 10.0
	StrengthStep    = 0.01
	StrengthDefault = 1.0
)

// ValidateStrength checks the bounded range.
func ValidateStrength(s float64) error {
	if s < StrengthMin || s > StrengthMax {
		return fmt.Errorf("strength %g out of range [%g, %g]", s, StrengthMin, StrengthMax)
	}
	return nil
}
