package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// encoder writes v in a structured format. Text output is produced by each
// command since it depends on the value.
type encoder func(w io.Writer, v any) error

var encoders = map[string]encoder{
	"text": nil,
	"json": encodeJSON,
	"yaml": encodeYAML,
	"cbor": encodeCBOR,
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}

	return enc.Close()
}

func encodeCBOR(w io.Writer, v any) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("cbor: %w", err)
	}
	_, err = w.Write(data)

	return err
}

// render writes v with the selected encoder, or calls text for text output.
func (g *globalFlags) render(w io.Writer, v any, text func(w io.Writer) error) error {
	enc := encoders[g.output]
	if enc == nil {
		return text(w)
	}

	return enc(w, v)
}

// WordValue is one 32-bit object read from the PCD.
type WordValue struct {
	Address int    `json:"address" yaml:"address" cbor:"address"`
	Value   uint32 `json:"value" yaml:"value" cbor:"value"`
}

// BitValue is one flag, input or output read from the PCD.
type BitValue struct {
	Address int  `json:"address" yaml:"address" cbor:"address"`
	Value   bool `json:"value" yaml:"value" cbor:"value"`
}

// WriteResult acknowledges a write.
type WriteResult struct {
	Object  string `json:"object" yaml:"object" cbor:"object"`
	Address int    `json:"address" yaml:"address" cbor:"address"`
	Value   any    `json:"value" yaml:"value" cbor:"value"`
}

func wordValues(start int, values []uint32) []WordValue {
	out := make([]WordValue, len(values))
	for i, v := range values {
		out[i] = WordValue{Address: start + i, Value: v}
	}

	return out
}

func bitValues(start int, values []bool) []BitValue {
	out := make([]BitValue, len(values))
	for i, v := range values {
		out[i] = BitValue{Address: start + i, Value: v}
	}

	return out
}

func onOff(v bool) string {
	if v {
		return "on"
	}

	return "off"
}
