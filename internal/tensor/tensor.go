// Package tensor holds the NCHW shape and float32 blob types shared by the
// source snapshot, the converter and the target runtime.
package tensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Shape is a (batch, channels, height, width) tuple. All dimensions are >= 1.
type Shape [4]int

// NewShape builds a Shape from 1 to 4 axes, right-padding with 1s.
// A Caffe InnerProduct top blob of shape [N, C] becomes (N, C, 1, 1).
func NewShape(dims ...int) (Shape, error) {
	if len(dims) == 0 {
		return Shape{}, errors.New("empty shape")
	}
	if len(dims) > 4 {
		return Shape{}, fmt.Errorf("shape rank %d > 4", len(dims))
	}
	s := Shape{1, 1, 1, 1}
	for i, d := range dims {
		if d <= 0 {
			return Shape{}, fmt.Errorf("dimension %d must be > 0, got %d", i, d)
		}
		s[i] = d
	}
	return s, nil
}

// MustShape is NewShape for literals known to be valid.
func MustShape(dims ...int) Shape {
	s, err := NewShape(dims...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Shape) N() int { return s[0] }
func (s Shape) C() int { return s[1] }
func (s Shape) H() int { return s[2] }
func (s Shape) W() int { return s[3] }

// Count returns the total number of elements.
func (s Shape) Count() int { return s[0] * s[1] * s[2] * s[3] }

// SampleCount returns the number of elements in one batch item.
func (s Shape) SampleCount() int { return s[1] * s[2] * s[3] }

// Validate ensures every dimension is positive.
func (s Shape) Validate() error {
	for i, v := range s {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Tensor is a flat float32 buffer in NCHW order plus its shape.
type Tensor struct {
	Data  []float32
	Shape Shape
}

// FromData wraps data as a tensor, checking its length against shape.
func FromData(shape Shape, data []float32) (Tensor, error) {
	t := Tensor{Data: data, Shape: shape}
	if err := t.Verify(); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

// Verify checks data length matches the shape.
func (t Tensor) Verify() error {
	if err := t.Shape.Validate(); err != nil {
		return err
	}
	if len(t.Data) != t.Shape.Count() {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), t.Shape.Count(), t.Shape)
	}
	return nil
}

// Stats returns min, max and mean of data, used in validation debug logs.
func Stats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
