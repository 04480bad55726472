// Package parser recognises phenopacket and consentpacket documents in
// artifact content.
package parser

import (
	"github.com/starford/pfdl/internal/models"
)

// File is a file reference inside a phenopacket.
type File struct {
	URI                         string
	IndividualToFileIdentifiers map[string]string
	FileAttributes              map[string]string
	Extra                       models.Fields
}

func (f *File) UnmarshalJSON(data []byte) error {
	extra, err := models.DecodeObject(data, map[string]any{
		"uri":                         &f.URI,
		"individualToFileIdentifiers": &f.IndividualToFileIdentifiers,
		"fileAttributes":              &f.FileAttributes,
	})
	f.Extra = extra
	return err
}

// Biosample is a sample with its own file references.
type Biosample struct {
	ID           string
	IndividualID string
	Files        []File
	Extra        models.Fields
}

func (b *Biosample) UnmarshalJSON(data []byte) error {
	extra, err := models.DecodeObject(data, map[string]any{
		"id":           &b.ID,
		"individualId": &b.IndividualID,
		"files":        &b.Files,
	})
	b.Extra = extra
	return err
}

// Phenopacket is an individual phenopacket.
type Phenopacket struct {
	ID         string
	Subject    *models.Subject
	Biosamples []Biosample
	Files      []File
	Extra      models.Fields
}

func (p *Phenopacket) UnmarshalJSON(data []byte) error {
	extra, err := models.DecodeObject(data, map[string]any{
		"id":         &p.ID,
		"subject":    &p.Subject,
		"biosamples": &p.Biosamples,
		"files":      &p.Files,
	})
	p.Extra = extra
	return err
}

var individualFields = []string{"phenotypicFeatures", "measurements", "interpretations", "medicalActions", "diseases"}

// LooksIndividual reports whether the document carries any of the members
// that only an individual phenopacket has.
func (p *Phenopacket) LooksIndividual() bool {
	if !p.Subject.Empty() || len(p.Biosamples) > 0 {
		return true
	}
	for _, k := range individualFields {
		if p.Extra.Present(k) {
			return true
		}
	}
	return false
}

// Family is a family phenopacket.
type Family struct {
	ID        string
	Proband   *Phenopacket
	Relatives []Phenopacket
	Files     []File
	Extra     models.Fields
}

func (f *Family) UnmarshalJSON(data []byte) error {
	extra, err := models.DecodeObject(data, map[string]any{
		"id":        &f.ID,
		"proband":   &f.Proband,
		"relatives": &f.Relatives,
		"files":     &f.Files,
	})
	f.Extra = extra
	return err
}

// LooksFamily reports whether the document has a proband, relatives or a pedigree.
func (f *Family) LooksFamily() bool {
	return (f.Proband != nil && !f.Proband.empty()) || len(f.Relatives) > 0 || f.Extra.Present("pedigree")
}

func (p *Phenopacket) empty() bool {
	if p.ID != "" || !p.Subject.Empty() || len(p.Biosamples) > 0 || len(p.Files) > 0 {
		return false
	}
	for k := range p.Extra {
		if p.Extra.Present(k) {
			return false
		}
	}
	return true
}
