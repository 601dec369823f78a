package convert

import (
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/caffebridge/internal/common"
	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/target"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// Converted is one layer ready to run on the target runtime.
type Converted struct {
	Index  int
	Spec   Spec
	Table  target.ConnectionTable
	Layer  target.Layer
	Stages map[string]time.Duration
}

// Session owns one conversion run over a source network. Layers are
// converted in declaration order; a layer without a recorded bottom blob
// takes its input shape from the previously converted layer.
type Session struct {
	net    *source.Net
	opts   Options
	layers []*Converted
}

// NewSession starts a conversion run over net.
func NewSession(net *source.Net, opts Options) *Session {
	return &Session{net: net, opts: opts, layers: make([]*Converted, net.Len())}
}

// Net returns the source network.
func (s *Session) Net() *source.Net { return s.net }

// Options returns the conversion options.
func (s *Session) Options() Options { return s.opts }

// Converted returns the result of an earlier ConvertLayer(i).
func (s *Session) Converted(i int) (*Converted, bool) {
	if i < 0 || i >= len(s.layers) || s.layers[i] == nil {
		return nil, false
	}
	return s.layers[i], true
}

// ConvertLayer runs normalize, shape inference, relayout and build for the
// layer at index i. Index 0 is the data layer and cannot be converted.
// Failures are returned as *LayerError.
func (s *Session) ConvertLayer(i int) (*Converted, error) {
	if i == 0 {
		return nil, errors.New("layer 0 is the input layer")
	}
	rec, err := s.net.Layer(i)
	if err != nil {
		return nil, err
	}
	fail := func(stage Stage, err error) error {
		return &LayerError{Index: i, Name: rec.Name, Type: rec.Type, Stage: stage, Err: err}
	}

	laps := common.StartLaps()
	in, err := s.inputShape(i, rec)
	if err != nil {
		return nil, fail(StageNormalize, err)
	}
	spec, err := Normalize(rec, in)
	if err != nil {
		return nil, fail(StageNormalize, err)
	}
	laps.Lap(string(StageNormalize))

	var observed *tensor.Shape
	if rec.Top != nil {
		top, err := rec.Top.Shape4()
		if err != nil {
			return nil, fail(StageInfer, malformed("top blob: %v", err))
		}
		observed = &top
	} else {
		s.opts.logger().Debug("no observed output shape, skipping cross-check", "layer", i, "name", rec.Name)
	}
	spec, err = ResolveShape(spec, observed)
	if err != nil {
		return nil, fail(StageInfer, err)
	}
	laps.Lap(string(StageInfer))

	tbl, err := ConnectionTable(spec)
	if err != nil {
		return nil, fail(StageRelayout, err)
	}
	bufs, err := Relayout(spec, tbl, rec.Blobs, s.opts)
	if err != nil {
		return nil, fail(StageRelayout, err)
	}
	laps.Lap(string(StageRelayout))

	var input []float32
	if rec.Bottom != nil && len(rec.Bottom.Data) > 0 {
		input = rec.Bottom.Data
	}
	layer, err := Build(spec, tbl, bufs, input)
	if err != nil {
		return nil, fail(StageBuild, err)
	}
	laps.Lap(string(StageBuild))

	c := &Converted{Index: i, Spec: spec, Table: tbl, Layer: layer, Stages: laps.Map()}
	s.layers[i] = c
	s.opts.logger().Debug("converted layer",
		"layer", i, "name", rec.Name, "kind", spec.Kind.String(), "target", layer.Type(),
		"in", spec.InputShape.String(), "out", spec.OutputShape.String(),
		"connection", tbl.String(), "took", laps.Total())
	return c, nil
}

func (s *Session) inputShape(i int, rec *source.LayerRecord) (tensor.Shape, error) {
	if rec.Bottom != nil {
		sh, err := rec.Bottom.Shape4()
		if err != nil {
			return tensor.Shape{}, malformed("bottom blob: %v", err)
		}
		return sh, nil
	}
	if prev, ok := s.Converted(i - 1); ok {
		return prev.Spec.OutputShape, nil
	}
	prev := &s.net.Layers[i-1]
	if prev.Top != nil {
		sh, err := prev.Top.Shape4()
		if err != nil {
			return tensor.Shape{}, malformed("previous top blob: %v", err)
		}
		return sh, nil
	}
	return tensor.Shape{}, fmt.Errorf("%w: no input shape recorded and layer %d not converted", ErrMalformedParameters, i-1)
}
