// Package codec is the single JSON encoding boundary for values leaving the
// process: CLI output, exports and imports. Nothing else in the module
// configures a JSON encoder.
package codec

import (
	"encoding/json"
	"io"
)

// Marshal encodes v as indented JSON.
func Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// Encode writes v to w as indented JSON followed by a newline.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Decode reads one JSON value from r into v, rejecting unknown fields.
func Decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
