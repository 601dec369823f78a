package target

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// ActivationFunc selects an elementwise function.
type ActivationFunc int

const (
	Identity ActivationFunc = iota
	ReLU
	LeakyReLU
	Sigmoid
	TanH
)

func (f ActivationFunc) String() string {
	switch f {
	case Identity:
		return "identity"
	case ReLU:
		return "relu"
	case LeakyReLU:
		return "leaky-relu"
	case Sigmoid:
		return "sigmoid"
	case TanH:
		return "tanh"
	default:
		return "unknown"
	}
}

// Activation applies an elementwise function; output shape equals input.
type Activation struct {
	base
	fn    ActivationFunc
	slope float32
}

// NewActivation builds an elementwise layer. slope is only used by LeakyReLU.
func NewActivation(in tensor.Shape, fn ActivationFunc, slope float32) (*Activation, error) {
	if fn < Identity || fn > TanH {
		return nil, fmt.Errorf("activation: unknown function %d", fn)
	}
	b, err := newBase(in, in)
	if err != nil {
		return nil, fmt.Errorf("activation: %w", err)
	}
	return &Activation{base: b, fn: fn, slope: slope}, nil
}

func (l *Activation) Type() string { return l.fn.String() }

// Func returns the function and the leaky slope.
func (l *Activation) Func() (ActivationFunc, float32) { return l.fn, l.slope }

func (l *Activation) Weights() [][]float32 { return nil }

func (l *Activation) Forward() error {
	if err := l.ready(); err != nil {
		return err
	}
	for i, x := range l.input {
		var y float32
		switch l.fn {
		case Identity:
			y = x
		case ReLU:
			y = max(x, 0)
		case LeakyReLU:
			y = x
			if x < 0 {
				y = x * l.slope
			}
		case Sigmoid:
			y = float32(1 / (1 + math.Exp(-float64(x))))
		case TanH:
			y = float32(math.Tanh(float64(x)))
		}
		l.output[i] = y
	}
	return nil
}

func (f ActivationFunc) MarshalText() ([]byte, error) { return []byte(f.String()), nil }
