package convert

import (
	"fmt"

	"github.com/MeKo-Tech/caffebridge/internal/target"
)

// Geometry is the window configuration recovered from a built layer.
type Geometry struct {
	Window
	Groups         int
	OutputChannels int
}

// DeriveGeometry reads kernel, stride, padding and groups back out of a
// built convolution or pooling layer.
func DeriveGeometry(l target.Layer) (Geometry, error) {
	switch v := l.(type) {
	case *target.Convolution:
		p := v.Params()
		return Geometry{
			Window: Window{
				KernelW: p.KernelW, KernelH: p.KernelH,
				StrideW: p.StrideW, StrideH: p.StrideH,
				PadW: p.Padding.Pad(p.KernelW), PadH: p.Padding.Pad(p.KernelH),
			},
			Groups:         p.Table.Groups(),
			OutputChannels: p.OutChannels,
		}, nil
	case *target.Pooling:
		p := v.Params()
		return Geometry{
			Window: Window{
				KernelW: p.KernelW, KernelH: p.KernelH,
				StrideW: p.StrideW, StrideH: p.StrideH,
				PadW: p.Padding.Pad(p.KernelW), PadH: p.Padding.Pad(p.KernelH),
			},
			Groups:         1,
			OutputChannels: v.OutShape().C(),
		}, nil
	default:
		return Geometry{}, fmt.Errorf("layer %q has no window geometry", l.Type())
	}
}

// Geometry returns the window configuration recorded in s, for comparison
// with DeriveGeometry.
func (s Spec) Geometry() (Geometry, bool) {
	switch {
	case s.Conv != nil:
		return Geometry{Window: s.Conv.Window, Groups: s.Conv.Groups, OutputChannels: s.Conv.OutputChannels}, true
	case s.Pool != nil:
		return Geometry{Window: s.Pool.Window, Groups: 1, OutputChannels: s.InputShape.C()}, true
	default:
		return Geometry{}, false
	}
}
