package convert

import (
	"fmt"
	"strings"
)

// Kind is the closed set of layer categories the converter handles.
type Kind int

const (
	Convolution Kind = iota
	Pooling
	InnerProduct
	Activation
	Normalization
	Softmax
	Dropout
)

var kindNames = [...]string{
	Convolution:   "Convolution",
	Pooling:       "Pooling",
	InnerProduct:  "InnerProduct",
	Activation:    "Activation",
	Normalization: "Normalization",
	Softmax:       "Softmax",
	Dropout:       "Dropout",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ParseKind resolves a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown layer kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
