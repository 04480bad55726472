package models

import (
	"encoding/json"

	"github.com/starford/pfdl/internal/checksum"
)

// Dataset is the assembled output of a successful check.
type Dataset struct {
	Individuals []Individual `json:"individuals"`
	Families    []Family     `json:"families"`
}

// ArtifactLink ties a file reference to the current version of an artifact.
type ArtifactLink struct {
	Batch     string       `json:"batch"`
	URIs      []string     `json:"uris"`
	Size      int64        `json:"size"`
	Checksums checksum.Set `json:"checksums"`
}

// File is a resolved file reference. Name replaces the reference's URI.
type File struct {
	Name                        string
	Artifact                    ArtifactLink
	IndividualToFileIdentifiers map[string]string
	FileAttributes              map[string]string
	Extra                       Fields
}

func (f File) MarshalJSON() ([]byte, error) {
	known := map[string]any{"uri": f.Name, "artifact": f.Artifact}
	if len(f.IndividualToFileIdentifiers) > 0 {
		known["individualToFileIdentifiers"] = f.IndividualToFileIdentifiers
	}
	if len(f.FileAttributes) > 0 {
		known["fileAttributes"] = f.FileAttributes
	}
	return EncodeObject(f.Extra, known)
}

// Biosample is a sample taken from an individual.
type Biosample struct {
	ID           string
	IndividualID string
	Files        []File
	Consent      json.RawMessage
	Extra        Fields
}

func (b Biosample) MarshalJSON() ([]byte, error) {
	known := map[string]any{"files": nonNil(b.Files)}
	if b.ID != "" {
		known["id"] = b.ID
	}
	if b.IndividualID != "" {
		known["individualId"] = b.IndividualID
	}
	if b.Consent != nil {
		known["consent"] = b.Consent
	}
	return EncodeObject(b.Extra, known)
}

// Individual is an assembled individual phenopacket.
type Individual struct {
	ID         string
	Subject    *Subject
	Biosamples []Biosample
	Files      []File
	Consent    json.RawMessage
	Extra      Fields
}

func (i Individual) MarshalJSON() ([]byte, error) {
	known := map[string]any{"files": nonNil(i.Files)}
	if i.ID != "" {
		known["id"] = i.ID
	}
	if i.Subject != nil {
		known["subject"] = i.Subject
	}
	if len(i.Biosamples) > 0 {
		known["biosamples"] = i.Biosamples
	}
	if i.Consent != nil {
		known["consent"] = i.Consent
	}
	return EncodeObject(i.Extra, known)
}

// Family is an assembled family phenopacket.
type Family struct {
	ID        string
	Proband   *Individual
	Relatives []Individual
	Files     []File
	Consent   json.RawMessage
	Extra     Fields
}

func (f Family) MarshalJSON() ([]byte, error) {
	known := map[string]any{
		"id":        f.ID,
		"files":     nonNil(f.Files),
		"relatives": nonNil(f.Relatives),
	}
	if f.Proband != nil {
		known["proband"] = f.Proband
	}
	if f.Consent != nil {
		known["consent"] = f.Consent
	}
	return EncodeObject(f.Extra, known)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
