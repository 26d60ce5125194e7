package postprocessors

import (
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/postprocessors/claims"
	"github.com/custodia-labs/patentgov/internal/postprocessors/spec"
)

// DefaultOrder is the processor order that yields claim_1, claim_set, spec.
var DefaultOrder = []string{claims.Name, spec.Name}

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register(claims.Name, buildClaims)
	r.Register(spec.Name, buildSpec)
}

// buildClaims creates the claims processor from generic config.
// Supported config keys:
//   - detectors ([]string): boundary detectors in order (default: numbered, cjk)
func buildClaims(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []claims.Option

	names := getStringsFromConfig(cfg, "detectors")
	if len(names) > 0 {
		detectors := make([]claims.BoundaryDetector, 0, len(names))
		for _, name := range names {
			d, err := claims.NewDetector(name)
			if err != nil {
				return nil, err
			}
			detectors = append(detectors, d)
		}
		opts = append(opts, claims.WithDetectors(detectors...))
	}

	return claims.New(opts...), nil
}

// buildSpec creates the spec processor from generic config.
// Supported config keys:
//   - policy (string): full_description or spec_focus (default: full_description)
//   - min_explain_paragraphs (int): spec_focus paragraph floor (default: 2)
//   - max_chars (int): head truncation limit in runes, 0 for none (default: 0)
func buildSpec(cfg map[string]any) (driven.PostProcessor, error) {
	policyName, _ := cfg["policy"].(string)
	policy, err := spec.NewPolicy(policyName, getIntFromConfig(cfg, "min_explain_paragraphs"))
	if err != nil {
		return nil, err
	}
	return spec.New(
		spec.WithPolicy(policy),
		spec.WithMaxChars(getIntFromConfig(cfg, "max_chars")),
	), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// getStringsFromConfig extracts a string list that may arrive as []string
// or as []any from TOML/JSON parsing.
func getStringsFromConfig(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
