package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a snapshot file. YAML and JSON are both accepted since JSON
// is a YAML subset.
func Load(path string) (*Net, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: snapshot path is user input by design
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	net, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return net, nil
}

// Decode parses a snapshot from r and validates it. Unknown fields are
// rejected so typos in parameter names do not silently fall back to defaults.
func Decode(r io.Reader) (*Net, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var net Net
	if err := dec.Decode(&net); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty snapshot")
		}
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}
	return &net, nil
}

// Save writes the network as YAML.
func Save(path string, net *Net) error {
	var buf bytes.Buffer
	if err := Encode(&buf, net); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

// Encode writes the network as YAML to w.
func Encode(w io.Writer, net *Net) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(net); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return enc.Close()
}
