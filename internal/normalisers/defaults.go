package normalisers

import (
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/normalisers/charset"
	"github.com/custodia-labs/patentgov/internal/normalisers/langhint"
	"github.com/custodia-labs/patentgov/internal/normalisers/whitespace"
)

// RegisterDefaults registers all built-in normalisers with the registry.
func RegisterDefaults(r *Registry) {
	r.Register(charset.Name, buildCharset)
	r.Register(whitespace.Name, buildWhitespace)
	r.Register(langhint.Name, buildLanghint)
}

func buildCharset(_ map[string]any) (driven.Normaliser, error) {
	return charset.New(), nil
}

func buildWhitespace(_ map[string]any) (driven.Normaliser, error) {
	return whitespace.New(), nil
}

// buildLanghint creates the language evidence normaliser.
// Supported config keys:
//   - low_signal_ratio (float): minimum letter share before LOW_SIGNAL_DENSITY (default: 0.3)
func buildLanghint(cfg map[string]any) (driven.Normaliser, error) {
	var opts []langhint.Option
	if ratio, ok := getFloatFromConfig(cfg, "low_signal_ratio"); ok {
		opts = append(opts, langhint.WithLowSignalRatio(ratio))
	}
	return langhint.New(opts...), nil
}

// getFloatFromConfig safely extracts a float from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getFloatFromConfig(cfg map[string]any, key string) (float64, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
