package convert

import (
	"errors"
	"fmt"
)

// Conversion failures. Each aborts conversion of the affected layer.
var (
	ErrUnsupportedLayerKind   = errors.New("unsupported layer kind")
	ErrMalformedParameters    = errors.New("malformed parameters")
	ErrShapeInferenceMismatch = errors.New("shape inference mismatch")
	ErrWeightCountMismatch    = errors.New("weight count mismatch")
)

// Stage names the conversion step that failed.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageInfer     Stage = "infer"
	StageRelayout  Stage = "relayout"
	StageBuild     Stage = "build"
)

// LayerError attaches the layer position to a conversion failure.
type LayerError struct {
	Index int
	Name  string
	Type  string
	Stage Stage
	Err   error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %d %q (%s) %s: %v", e.Index, e.Name, e.Type, e.Stage, e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }

// IsStructural reports whether err belongs to the conversion error taxonomy.
func IsStructural(err error) bool {
	return errors.Is(err, ErrUnsupportedLayerKind) ||
		errors.Is(err, ErrMalformedParameters) ||
		errors.Is(err, ErrShapeInferenceMismatch) ||
		errors.Is(err, ErrWeightCountMismatch)
}

// Category returns a short label for err, used in reports and metrics.
func Category(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnsupportedLayerKind):
		return "unsupported_layer_kind"
	case errors.Is(err, ErrMalformedParameters):
		return "malformed_parameters"
	case errors.Is(err, ErrShapeInferenceMismatch):
		return "shape_inference_mismatch"
	case errors.Is(err, ErrWeightCountMismatch):
		return "weight_count_mismatch"
	default:
		return "error"
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedParameters, fmt.Sprintf(format, args...))
}

func weightMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrWeightCountMismatch, fmt.Sprintf(format, args...))
}

func unsupported(typeName string) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedLayerKind, typeName)
}
