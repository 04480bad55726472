// Package models defines the phenopacket object helpers and the assembled
// dataset graph.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errNotObject = errors.New("not a JSON object")

// Fields holds object members that are carried through without interpretation.
type Fields map[string]json.RawMessage

// DecodeObject decodes the members named in known into their targets and
// returns every other member untouched. Null members are skipped.
func DecodeObject(data []byte, known map[string]any) (Fields, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	if all == nil {
		return nil, errNotObject
	}
	for key, target := range known {
		raw, ok := all[key]
		if !ok {
			continue
		}
		delete(all, key)
		if isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return Fields(all), nil
}

// EncodeObject writes rest with the known members laid over it.
func EncodeObject(rest Fields, known map[string]any) ([]byte, error) {
	out := make(map[string]any, len(rest)+len(known))
	for k, v := range rest {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

// Present reports whether key holds a value other than null, "", [] or {}.
func (f Fields) Present(key string) bool {
	raw, ok := f[key]
	return ok && !IsEmpty(raw)
}

// IsEmpty reports whether raw is null, an empty string, array or object.
func IsEmpty(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return true
	}
	switch raw[0] {
	case '"':
		return string(raw) == `""`
	case '[':
		var v []json.RawMessage
		return json.Unmarshal(raw, &v) == nil && len(v) == 0
	case '{':
		var m map[string]json.RawMessage
		return json.Unmarshal(raw, &m) == nil && len(m) == 0
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// Subject is the individual a phenopacket describes.
type Subject struct {
	ID    string
	Extra Fields
}

// Empty reports whether the subject carries no information at all.
func (s *Subject) Empty() bool {
	if s == nil {
		return true
	}
	if s.ID != "" {
		return false
	}
	for k := range s.Extra {
		if s.Extra.Present(k) {
			return false
		}
	}
	return true
}

func (s *Subject) UnmarshalJSON(data []byte) error {
	extra, err := DecodeObject(data, map[string]any{"id": &s.ID})
	if err != nil {
		return err
	}
	s.Extra = extra
	return nil
}

func (s Subject) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
	if s.ID != "" {
		known["id"] = s.ID
	}
	return EncodeObject(s.Extra, known)
}
