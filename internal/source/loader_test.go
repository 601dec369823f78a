package source

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyYAML = `name: micro
layers:
  - name: data
    type: Input
    top: {shape: [1, 2, 2, 2]}
  - name: conv1
    type: Convolution
    bottom: {shape: [1, 2, 2, 2], data: [1, 2, 3, 4, 5, 6, 7, 8]}
    top: {shape: [1, 1, 2, 2]}
    blobs:
      - {shape: [1, 2, 1, 1], data: [0.5, -0.5]}
      - {shape: [1], data: [0.1]}
    convolution_param: {num_output: 1, kernel_size: [1]}
`

func TestDecode(t *testing.T) {
	net, err := Decode(strings.NewReader(tinyYAML))
	require.NoError(t, err)
	assert.Equal(t, "micro", net.Name)
	require.Equal(t, 2, net.Len())

	conv, err := net.Layer(1)
	require.NoError(t, err)
	assert.Equal(t, "Convolution", conv.Type)
	require.NotNil(t, conv.Convolution)
	assert.Equal(t, []int{1}, conv.Convolution.KernelSize)
	assert.Equal(t, 1, *conv.Convolution.NumOutput)
	assert.Nil(t, conv.Convolution.Group)
	assert.Len(t, conv.Blobs, 2)

	_, err = net.Layer(2)
	assert.Error(t, err)
}

func TestDecode_JSON(t *testing.T) {
	net, err := Decode(strings.NewReader(`{"name":"j","layers":[{"name":"data","type":"Input","top":{"shape":[1,3]}}]}`))
	require.NoError(t, err)
	s, err := net.Layers[0].Top.Shape4()
	require.NoError(t, err)
	assert.Equal(t, "(1,3,1,1)", s.String())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "empty snapshot"},
		{"unknown field", "name: x\nlayers:\n  - {name: d, type: Input, colour: red}\n", "colour"},
		{"no layers", "name: x\nlayers: []\n", "no layers"},
		{"missing type", "layers:\n  - {name: d}\n", "missing type"},
		{"data length", "layers:\n  - {name: d, type: Input, top: {shape: [1, 2], data: [1]}}\n", "data length 1"},
		{"bad blob dim", "layers:\n  - {name: d, type: Input, blobs: [{shape: [0], data: [1]}]}\n", "invalid dim"},
		{"rank", "layers:\n  - {name: d, type: Input, top: {shape: [1, 1, 1, 1, 1]}}\n", "rank"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	net, err := Decode(strings.NewReader(tinyYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "micro.yaml")
	require.NoError(t, Save(path, net))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, net, loaded)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, net))
	assert.Contains(t, buf.String(), "convolution_param:")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read snapshot")

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("layers: [x"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "broken.yaml")
}

func TestBlob(t *testing.T) {
	b := Blob{Shape: []int{2, 3}, Data: make([]float32, 6)}
	assert.Equal(t, 6, b.Count())
	tt, err := b.Tensor()
	require.NoError(t, err)
	assert.Equal(t, 2, tt.Shape.N())

	assert.Zero(t, (&Blob{}).Count())

	shapeOnly := Blob{Shape: []int{1, 4}}
	assert.NoError(t, shapeOnly.checkData())
	_, err = shapeOnly.Tensor()
	assert.Error(t, err)
}
