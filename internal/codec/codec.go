// Package codec encodes check reports for output.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/gowebpki/jcs"
)

// Format names an output encoding.
type Format string

const (
	JSON      Format = "json"
	Canonical Format = "canonical"
	CBOR      Format = "cbor"
)

// Formats lists every supported format.
var Formats = []Format{JSON, Canonical, CBOR}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("codec: unknown format %q", s)
}

// encMode is Core Deterministic Encoding: sorted map keys and shortest
// integer forms, so equal reports produce equal bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v in format f.
//
// Reports carry raw JSON members (phenopacket fields kept as they were
// read), so CBOR is produced from the JSON form of v rather than from v
// itself.
func Marshal(f Format, v any) ([]byte, error) {
	switch f {
	case JSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("codec: json: %w", err)
		}
		return append(data, '\n'), nil
	case Canonical:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("codec: json: %w", err)
		}
		out, err := jcs.Transform(data)
		if err != nil {
			return nil, fmt.Errorf("codec: canonicalize: %w", err)
		}
		return out, nil
	case CBOR:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("codec: json: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return nil, fmt.Errorf("codec: json: %w", err)
		}
		out, err := encMode.Marshal(numbers(generic))
		if err != nil {
			return nil, fmt.Errorf("codec: cbor: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unknown format %q", f)
	}
}

// Write encodes v to w.
func Write(w io.Writer, f Format, v any) error {
	data, err := Marshal(f, v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// UnmarshalCBOR decodes CBOR data into v.
func UnmarshalCBOR(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// numbers replaces json.Number values with integers where they fit so
// sizes encode as CBOR integers rather than floats.
func numbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = numbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = numbers(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
