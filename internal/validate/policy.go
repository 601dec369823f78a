package validate

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/caffebridge/internal/convert"
)

// Policy lists the layer kinds whose divergence is tolerated. Version
// identifies the list so reports can record which one applied.
type Policy struct {
	Version string         `json:"version" yaml:"version"`
	Exempt  []convert.Kind `json:"exempt" yaml:"exempt"`
}

// Policy names accepted by PolicyByName.
const (
	PolicyStrict  = "strict"
	PolicyLenient = "lenient"
	PolicyCustom  = "custom"
)

// StrictPolicy exempts nothing.
func StrictPolicy() Policy {
	return Policy{Version: "strict/v1"}
}

// LenientPolicy exempts convolution and normalization layers, whose
// implementations are known to drift between the two runtimes.
func LenientPolicy() Policy {
	return Policy{Version: "lenient/v1", Exempt: []convert.Kind{convert.Convolution, convert.Normalization}}
}

// IsExempt reports whether k is exempt under p.
func (p Policy) IsExempt(k convert.Kind) bool {
	return slices.Contains(p.Exempt, k)
}

func (p Policy) String() string {
	names := make([]string, len(p.Exempt))
	for i, k := range p.Exempt {
		names[i] = k.String()
	}
	return fmt.Sprintf("%s [%s]", p.Version, strings.Join(names, ","))
}

// PolicyByName resolves a configured policy. For "custom" the exempt kinds
// come from kinds and version must be set.
func PolicyByName(name, version string, kinds []string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", PolicyStrict:
		return StrictPolicy(), nil
	case PolicyLenient:
		return LenientPolicy(), nil
	case PolicyCustom:
		if version == "" {
			return Policy{}, errors.New("custom validation policy needs a version")
		}
		p := Policy{Version: version}
		for _, s := range kinds {
			k, err := parseExempt(s)
			if err != nil {
				return Policy{}, fmt.Errorf("exempt kinds: %w", err)
			}
			if !p.IsExempt(k) {
				p.Exempt = append(p.Exempt, k)
			}
		}
		return p, nil
	default:
		return Policy{}, fmt.Errorf("unknown validation policy %q", name)
	}
}

// parseExempt accepts a kind name or a source layer type such as "LRN".
func parseExempt(s string) (convert.Kind, error) {
	k, err := convert.ParseKind(s)
	if err == nil {
		return k, nil
	}
	if k, ok := convert.Lookup(strings.TrimSpace(s)); ok {
		return k, nil
	}
	return 0, err
}
