package parser

import (
	"bytes"
	"encoding/json"

	"github.com/starford/pfdl/internal/models"
)

// consentMarker is the member every consentpacket carries.
const consentMarker = "schemaMajorVersion"

// ParseConsent returns the compacted consentpacket when content is a JSON
// object with a version marker.
func ParseConsent(content []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	fields, err := models.DecodeObject(trimmed, nil)
	if err != nil {
		return nil, false
	}
	if _, ok := fields[consentMarker]; !ok {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}
