// Package source models the source runtime's network after one forward
// pass: ordered layer records with their parameters, learned blobs and the
// observed bottom/top activations. The wire format itself belongs to the
// source runtime; this package only reads an already-deserialized snapshot.
package source

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// Net is an ordered list of layer records in declaration order.
type Net struct {
	Name   string        `yaml:"name" json:"name"`
	Layers []LayerRecord `yaml:"layers" json:"layers"`
}

// LayerRecord is one layer of the source network.
type LayerRecord struct {
	Name   string `yaml:"name" json:"name"`
	Type   string `yaml:"type" json:"type"`
	Bottom *Blob  `yaml:"bottom,omitempty" json:"bottom,omitempty"`
	Top    *Blob  `yaml:"top,omitempty" json:"top,omitempty"`
	Blobs  []Blob `yaml:"blobs,omitempty" json:"blobs,omitempty"`

	Convolution  *ConvolutionParam  `yaml:"convolution_param,omitempty" json:"convolution_param,omitempty"`
	Pooling      *PoolingParam      `yaml:"pooling_param,omitempty" json:"pooling_param,omitempty"`
	InnerProduct *InnerProductParam `yaml:"inner_product_param,omitempty" json:"inner_product_param,omitempty"`
	LRN          *LRNParam          `yaml:"lrn_param,omitempty" json:"lrn_param,omitempty"`
	ReLU         *ReLUParam         `yaml:"relu_param,omitempty" json:"relu_param,omitempty"`
	Dropout      *DropoutParam      `yaml:"dropout_param,omitempty" json:"dropout_param,omitempty"`
	Softmax      *SoftmaxParam      `yaml:"softmax_param,omitempty" json:"softmax_param,omitempty"`
}

// Blob is a flat float buffer with its declared shape (1 to 4 axes).
type Blob struct {
	Shape []int     `yaml:"shape,flow" json:"shape"`
	Data  []float32 `yaml:"data,flow,omitempty" json:"data,omitempty"`
}

// ConvolutionParam mirrors the Caffe convolution_param message. Repeated
// fields stay slices so the normalizer can see how many values were given.
type ConvolutionParam struct {
	NumOutput  *int  `yaml:"num_output,omitempty" json:"num_output,omitempty"`
	BiasTerm   *bool `yaml:"bias_term,omitempty" json:"bias_term,omitempty"`
	KernelSize []int `yaml:"kernel_size,flow,omitempty" json:"kernel_size,omitempty"`
	Stride     []int `yaml:"stride,flow,omitempty" json:"stride,omitempty"`
	Pad        []int `yaml:"pad,flow,omitempty" json:"pad,omitempty"`
	Dilation   []int `yaml:"dilation,flow,omitempty" json:"dilation,omitempty"`
	KernelH    *int  `yaml:"kernel_h,omitempty" json:"kernel_h,omitempty"`
	KernelW    *int  `yaml:"kernel_w,omitempty" json:"kernel_w,omitempty"`
	StrideH    *int  `yaml:"stride_h,omitempty" json:"stride_h,omitempty"`
	StrideW    *int  `yaml:"stride_w,omitempty" json:"stride_w,omitempty"`
	PadH       *int  `yaml:"pad_h,omitempty" json:"pad_h,omitempty"`
	PadW       *int  `yaml:"pad_w,omitempty" json:"pad_w,omitempty"`
	Group      *int  `yaml:"group,omitempty" json:"group,omitempty"`
}

// PoolingParam mirrors the Caffe pooling_param message.
type PoolingParam struct {
	Pool          string `yaml:"pool,omitempty" json:"pool,omitempty"`
	KernelSize    *int   `yaml:"kernel_size,omitempty" json:"kernel_size,omitempty"`
	KernelH       *int   `yaml:"kernel_h,omitempty" json:"kernel_h,omitempty"`
	KernelW       *int   `yaml:"kernel_w,omitempty" json:"kernel_w,omitempty"`
	Stride        *int   `yaml:"stride,omitempty" json:"stride,omitempty"`
	StrideH       *int   `yaml:"stride_h,omitempty" json:"stride_h,omitempty"`
	StrideW       *int   `yaml:"stride_w,omitempty" json:"stride_w,omitempty"`
	Pad           *int   `yaml:"pad,omitempty" json:"pad,omitempty"`
	PadH          *int   `yaml:"pad_h,omitempty" json:"pad_h,omitempty"`
	PadW          *int   `yaml:"pad_w,omitempty" json:"pad_w,omitempty"`
	GlobalPooling bool   `yaml:"global_pooling,omitempty" json:"global_pooling,omitempty"`
}

// InnerProductParam mirrors the Caffe inner_product_param message.
type InnerProductParam struct {
	NumOutput *int  `yaml:"num_output,omitempty" json:"num_output,omitempty"`
	BiasTerm  *bool `yaml:"bias_term,omitempty" json:"bias_term,omitempty"`
	Axis      *int  `yaml:"axis,omitempty" json:"axis,omitempty"`
	Transpose bool  `yaml:"transpose,omitempty" json:"transpose,omitempty"`
}

// LRNParam mirrors the Caffe lrn_param message.
type LRNParam struct {
	LocalSize  *int     `yaml:"local_size,omitempty" json:"local_size,omitempty"`
	Alpha      *float32 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	Beta       *float32 `yaml:"beta,omitempty" json:"beta,omitempty"`
	K          *float32 `yaml:"k,omitempty" json:"k,omitempty"`
	NormRegion string   `yaml:"norm_region,omitempty" json:"norm_region,omitempty"`
}

// ReLUParam mirrors the Caffe relu_param message.
type ReLUParam struct {
	NegativeSlope float32 `yaml:"negative_slope,omitempty" json:"negative_slope,omitempty"`
}

// DropoutParam mirrors the Caffe dropout_param message.
type DropoutParam struct {
	DropoutRatio float32 `yaml:"dropout_ratio,omitempty" json:"dropout_ratio,omitempty"`
}

// SoftmaxParam mirrors the Caffe softmax_param message.
type SoftmaxParam struct {
	Axis *int `yaml:"axis,omitempty" json:"axis,omitempty"`
}

// Len returns the number of layers, including the data layer at index 0.
func (n *Net) Len() int { return len(n.Layers) }

// Layer returns the record at index i.
func (n *Net) Layer(i int) (*LayerRecord, error) {
	if i < 0 || i >= len(n.Layers) {
		return nil, fmt.Errorf("layer index %d out of range [0, %d)", i, len(n.Layers))
	}
	return &n.Layers[i], nil
}

// Validate checks structural consistency of every recorded blob.
func (n *Net) Validate() error {
	if len(n.Layers) == 0 {
		return errors.New("network has no layers")
	}
	for i := range n.Layers {
		rec := &n.Layers[i]
		if rec.Type == "" {
			return fmt.Errorf("layer %d (%s): missing type", i, rec.Name)
		}
		for _, b := range []*Blob{rec.Bottom, rec.Top} {
			if b == nil {
				continue
			}
			if _, err := b.Shape4(); err != nil {
				return fmt.Errorf("layer %d (%s): %w", i, rec.Name, err)
			}
			if err := b.checkData(); err != nil {
				return fmt.Errorf("layer %d (%s): %w", i, rec.Name, err)
			}
		}
		for j := range rec.Blobs {
			if err := rec.Blobs[j].checkData(); err != nil {
				return fmt.Errorf("layer %d (%s) blob %d: %w", i, rec.Name, j, err)
			}
		}
	}
	return nil
}

// Shape4 returns the blob shape right-padded to four axes.
func (b *Blob) Shape4() (tensor.Shape, error) {
	return tensor.NewShape(b.Shape...)
}

// Count returns the number of elements implied by the declared shape.
func (b *Blob) Count() int {
	if len(b.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

// Tensor converts the blob into a 4-axis tensor sharing the same data.
func (b *Blob) Tensor() (tensor.Tensor, error) {
	s, err := b.Shape4()
	if err != nil {
		return tensor.Tensor{}, err
	}
	return tensor.FromData(s, b.Data)
}

// checkData accepts shape-only blobs; when data is present its length must
// match the declared shape.
func (b *Blob) checkData() error {
	if len(b.Data) == 0 {
		return nil
	}
	for i, d := range b.Shape {
		if d <= 0 {
			return fmt.Errorf("invalid dim %d at axis %d", d, i)
		}
	}
	if len(b.Data) != b.Count() {
		return fmt.Errorf("blob data length %d != %d for shape %v", len(b.Data), b.Count(), b.Shape)
	}
	return nil
}
