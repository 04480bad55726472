package parser

import (
	"bytes"
	"encoding/json"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/models"
)

// Kind tags the variant of a recognised document.
type Kind int

const (
	KindIndividual Kind = iota + 1
	KindFamily
)

func (k Kind) String() string {
	switch k {
	case KindIndividual:
		return "individual"
	case KindFamily:
		return "family"
	default:
		return "unknown"
	}
}

// Document is a recognised phenopacket. Exactly one of Individual and
// Family is set, matching Kind.
type Document struct {
	Kind       Kind
	Individual *Phenopacket
	Family     *Family
}

var cohortFields = []string{"description", "members"}

// Parse sniffs content as a phenopacket, trying JSON and then the protobuf
// binary encoding. It returns nil without error when content is not a
// phenopacket, and apperr.ErrUnsupportedDocument for cohorts.
func Parse(content []byte) (*Document, error) {
	if len(content) == 0 {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
		return recognize(trimmed)
	}
	for _, schema := range []*message{phenopacketMessage, familyMessage, cohortMessage} {
		data, err := binaryToJSON(content, schema)
		if err != nil {
			continue
		}
		doc, err := recognize(data)
		if doc != nil || err != nil {
			return doc, err
		}
	}
	return nil, nil
}

// recognize matches a JSON object against the individual, family and cohort
// heuristics in that order. Consentpackets are not documents.
func recognize(data []byte) (*Document, error) {
	var p Phenopacket
	if err := json.Unmarshal(data, &p); err == nil && p.LooksIndividual() {
		return &Document{Kind: KindIndividual, Individual: &p}, nil
	}
	var f Family
	if err := json.Unmarshal(data, &f); err == nil && f.LooksFamily() {
		return &Document{Kind: KindFamily, Family: &f}, nil
	}
	rest, err := models.DecodeObject(data, nil)
	if err != nil {
		return nil, nil
	}
	// Consentpackets may carry a description; they are never cohorts.
	if _, ok := rest[consentMarker]; ok {
		return nil, nil
	}
	for _, k := range cohortFields {
		if rest.Present(k) {
			return nil, apperr.ErrUnsupportedDocument
		}
	}
	return nil, nil
}
