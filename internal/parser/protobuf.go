package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// The binary encoding is decoded against a field table covering the members
// the checks look at. Messages the checks never inspect are decoded as
// opaque and surface as empty objects, which is enough for presence tests.

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindEnum
	kindMessage
	kindOpaque
	kindStringMap
)

type field struct {
	name     string
	kind     fieldKind
	repeated bool
	msg      *message
	enum     map[uint64]string
}

type message struct {
	name   string
	fields map[protowire.Number]field
}

var (
	errWireType = errors.New("unexpected wire type")
	errUTF8     = errors.New("string field is not valid UTF-8")
)

var (
	sexEnum = map[uint64]string{0: "UNKNOWN_SEX", 1: "FEMALE", 2: "MALE", 3: "OTHER_SEX"}

	karyotypicSexEnum = map[uint64]string{
		0: "UNKNOWN_KARYOTYPE", 1: "XX", 2: "XY", 3: "XO", 4: "XXY", 5: "XXX",
		6: "XXYY", 7: "XXXY", 8: "XXXX", 9: "XYY", 10: "OTHER_KARYOTYPE",
	}

	fileMessage = &message{name: "File", fields: map[protowire.Number]field{
		1: {name: "uri", kind: kindString},
		2: {name: "individualToFileIdentifiers", kind: kindStringMap},
		3: {name: "fileAttributes", kind: kindStringMap},
	}}

	individualMessage = &message{name: "Individual", fields: map[protowire.Number]field{
		1: {name: "id", kind: kindString},
		2: {name: "alternateIds", kind: kindString, repeated: true},
		3: {name: "dateOfBirth", kind: kindOpaque},
		4: {name: "timeAtLastEncounter", kind: kindOpaque},
		5: {name: "vitalStatus", kind: kindOpaque},
		6: {name: "sex", kind: kindEnum, enum: sexEnum},
		7: {name: "karyotypicSex", kind: kindEnum, enum: karyotypicSexEnum},
		8: {name: "gender", kind: kindOpaque},
		9: {name: "taxonomy", kind: kindOpaque},
	}}

	biosampleMessage = &message{name: "Biosample", fields: map[protowire.Number]field{
		1:  {name: "id", kind: kindString},
		2:  {name: "individualId", kind: kindString},
		3:  {name: "derivedFromId", kind: kindString},
		4:  {name: "description", kind: kindString},
		5:  {name: "sampledTissue", kind: kindOpaque},
		6:  {name: "sampleType", kind: kindOpaque},
		7:  {name: "phenotypicFeatures", kind: kindOpaque, repeated: true},
		8:  {name: "measurements", kind: kindOpaque, repeated: true},
		9:  {name: "taxonomy", kind: kindOpaque},
		10: {name: "timeOfCollection", kind: kindOpaque},
		11: {name: "histologicalDiagnosis", kind: kindOpaque},
		12: {name: "tumorProgression", kind: kindOpaque},
		13: {name: "tumorGrade", kind: kindOpaque},
		14: {name: "pathologicalStage", kind: kindOpaque},
		15: {name: "pathologicalTnmFinding", kind: kindOpaque, repeated: true},
		16: {name: "diagnosticMarkers", kind: kindOpaque, repeated: true},
		17: {name: "procedure", kind: kindOpaque},
		18: {name: "files", kind: kindMessage, repeated: true, msg: fileMessage},
		19: {name: "materialSample", kind: kindOpaque},
		20: {name: "sampleProcessing", kind: kindOpaque},
		21: {name: "sampleStorage", kind: kindOpaque},
	}}

	phenopacketMessage = &message{name: "Phenopacket", fields: map[protowire.Number]field{
		1:  {name: "id", kind: kindString},
		2:  {name: "subject", kind: kindMessage, msg: individualMessage},
		3:  {name: "phenotypicFeatures", kind: kindOpaque, repeated: true},
		4:  {name: "measurements", kind: kindOpaque, repeated: true},
		5:  {name: "biosamples", kind: kindMessage, repeated: true, msg: biosampleMessage},
		6:  {name: "interpretations", kind: kindOpaque, repeated: true},
		7:  {name: "diseases", kind: kindOpaque, repeated: true},
		8:  {name: "medicalActions", kind: kindOpaque, repeated: true},
		9:  {name: "files", kind: kindMessage, repeated: true, msg: fileMessage},
		10: {name: "metaData", kind: kindOpaque},
	}}

	pedigreeMessage = &message{name: "Pedigree", fields: map[protowire.Number]field{
		1: {name: "persons", kind: kindOpaque, repeated: true},
	}}

	familyMessage = &message{name: "Family", fields: map[protowire.Number]field{
		1: {name: "id", kind: kindString},
		2: {name: "proband", kind: kindMessage, msg: phenopacketMessage},
		3: {name: "relatives", kind: kindMessage, repeated: true, msg: phenopacketMessage},
		4: {name: "pedigree", kind: kindMessage, msg: pedigreeMessage},
		5: {name: "files", kind: kindMessage, repeated: true, msg: fileMessage},
		6: {name: "metaData", kind: kindOpaque},
		7: {name: "consanguinousParents", kind: kindBool},
	}}

	cohortMessage = &message{name: "Cohort", fields: map[protowire.Number]field{
		1: {name: "id", kind: kindString},
		2: {name: "description", kind: kindString},
		3: {name: "members", kind: kindMessage, repeated: true, msg: phenopacketMessage},
		4: {name: "files", kind: kindMessage, repeated: true, msg: fileMessage},
		5: {name: "metaData", kind: kindOpaque},
	}}

	opaqueMessage = &message{name: "opaque"}

	mapEntryMessage = &message{name: "MapEntry", fields: map[protowire.Number]field{
		1: {name: "key", kind: kindString},
		2: {name: "value", kind: kindString},
	}}
)

// binaryToJSON decodes a protobuf binary message into its JSON form.
func binaryToJSON(b []byte, m *message) ([]byte, error) {
	obj, err := decodeMessage(b, m)
	if err != nil {
		return nil, fmt.Errorf("parser: decode %s: %w", m.name, err)
	}
	return json.Marshal(obj)
}

func decodeMessage(b []byte, m *message) (map[string]any, error) {
	out := make(map[string]any)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		f, known := m.fields[num]
		if !known {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n, err := decodeValue(b, typ, f)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.name, f.name, err)
		}
		b = b[n:]

		switch {
		case f.kind == kindStringMap:
			entry := v.(map[string]any)
			dst, _ := out[f.name].(map[string]any)
			if dst == nil {
				dst = make(map[string]any)
				out[f.name] = dst
			}
			key, _ := entry["key"].(string)
			value, _ := entry["value"].(string)
			dst[key] = value
		case f.repeated:
			list, _ := out[f.name].([]any)
			out[f.name] = append(list, v)
		default:
			out[f.name] = v
		}
	}
	return out, nil
}

func decodeValue(b []byte, typ protowire.Type, f field) (any, int, error) {
	switch f.kind {
	case kindBool, kindEnum:
		if typ != protowire.VarintType {
			return nil, 0, errWireType
		}
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		if f.kind == kindBool {
			return x != 0, n, nil
		}
		if name, ok := f.enum[x]; ok {
			return name, n, nil
		}
		return int64(x), n, nil
	}

	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	switch f.kind {
	case kindString:
		if !utf8.Valid(raw) {
			return nil, 0, errUTF8
		}
		return string(raw), n, nil
	case kindMessage:
		v, err := decodeMessage(raw, f.msg)
		return v, n, err
	case kindStringMap:
		v, err := decodeMessage(raw, mapEntryMessage)
		return v, n, err
	default:
		_, err := decodeMessage(raw, opaqueMessage)
		return map[string]any{}, n, err
	}
}
