package convert

import (
	"maps"
	"slices"

	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/target"
)

type (
	normalizeFunc func(rec *source.LayerRecord, s *Spec) error
	relayoutFunc  func(s Spec, tbl target.ConnectionTable, blobs []source.Blob, opts Options) ([]WeightBuffer, error)
	buildFunc     func(s Spec, tbl target.ConnectionTable) (target.Layer, error)
)

// entry ties a source type name to its kind and per-stage handlers.
// A nil relayout means the layer has no learned parameters.
type entry struct {
	kind      Kind
	normalize normalizeFunc
	relayout  relayoutFunc
	build     buildFunc
}

// registry is the single table consulted by Normalize, Relayout and Build.
var registry = map[string]entry{
	"Convolution":  {kind: Convolution, normalize: normalizeConvolution, relayout: relayoutConvolution, build: buildConvolution},
	"Pooling":      {kind: Pooling, normalize: normalizePooling, build: buildPooling},
	"InnerProduct": {kind: InnerProduct, normalize: normalizeInnerProduct, relayout: relayoutInnerProduct, build: buildInnerProduct},
	"ReLU":         {kind: Activation, normalize: normalizeReLU, build: buildActivation},
	"Sigmoid":      {kind: Activation, normalize: elementwise(target.Sigmoid), build: buildActivation},
	"TanH":         {kind: Activation, normalize: elementwise(target.TanH), build: buildActivation},
	"LRN":          {kind: Normalization, normalize: normalizeLRN, build: buildLRN},
	"Softmax":      {kind: Softmax, normalize: normalizeSoftmax, build: buildSoftmax},
	"Dropout":      {kind: Dropout, normalize: normalizeDropout, build: buildDropout},
}

func lookup(typeName string) (entry, bool) {
	e, ok := registry[typeName]
	return e, ok
}

// Lookup returns the kind registered for a source type name.
func Lookup(typeName string) (Kind, bool) {
	e, ok := lookup(typeName)
	return e.kind, ok
}

// SupportedTypes lists the registered source type names, sorted.
func SupportedTypes() []string {
	return slices.Sorted(maps.Keys(registry))
}
