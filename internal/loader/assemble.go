package loader

import (
	"encoding/json"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/artifact"
	"github.com/starford/pfdl/internal/models"
	"github.com/starford/pfdl/internal/parser"
)

const (
	MsgConsentConflict = "Only one consentpacket can be applied at any level (family, individual, biosample)"
	MsgUnresolved      = "Phenopacket file entry could not be resolved to an artifact"

	LabelDataset = "Dataset could not be assembled"
)

// Assemble builds the dataset from every current phenopacket. File
// references become artifact links and a consentpacket referenced at a level
// moves out of that level's files into its consent. The structure is not
// modified. Assemble expects a structure that passed CheckDocuments.
func Assemble(s *Structure) (*models.Dataset, error) {
	ds := &models.Dataset{Individuals: []models.Individual{}, Families: []models.Family{}}
	for _, name := range s.Names() {
		if s.IsDeleted(name) {
			continue
		}
		id, _ := s.Current(name)
		rep := id.Representative()
		doc, err := parser.Parse(rep.Content())
		if err != nil || doc == nil {
			continue
		}
		a := assembler{s: s, source: rep}
		switch doc.Kind {
		case parser.KindIndividual:
			ind, err := a.individual(doc.Individual)
			if err != nil {
				return nil, err
			}
			ds.Individuals = append(ds.Individuals, ind)
		case parser.KindFamily:
			fam, err := a.family(doc.Family)
			if err != nil {
				return nil, err
			}
			ds.Families = append(ds.Families, fam)
		}
	}
	return ds, nil
}

// assembler converts one phenopacket artifact.
type assembler struct {
	s      *Structure
	source *artifact.Artifact
}

func (a assembler) fail(cat apperr.Category, msg string, err error) error {
	return apperr.Fail(LabelDataset, apperr.Failure{
		Message:  msg,
		Category: cat,
		Root:     a.source.Root,
		Batch:    a.source.Batch,
		Artifact: a.source.Name,
	}.WithDetail(err))
}

func (a assembler) family(f *parser.Family) (models.Family, error) {
	files, consent, err := a.files(f.Files)
	if err != nil {
		return models.Family{}, err
	}
	out := models.Family{ID: f.ID, Files: files, Consent: consent, Extra: f.Extra}
	if f.Proband != nil {
		p, err := a.individual(f.Proband)
		if err != nil {
			return models.Family{}, err
		}
		out.Proband = &p
	}
	for i := range f.Relatives {
		r, err := a.individual(&f.Relatives[i])
		if err != nil {
			return models.Family{}, err
		}
		out.Relatives = append(out.Relatives, r)
	}
	return out, nil
}

func (a assembler) individual(p *parser.Phenopacket) (models.Individual, error) {
	files, consent, err := a.files(p.Files)
	if err != nil {
		return models.Individual{}, err
	}
	out := models.Individual{ID: p.ID, Subject: p.Subject, Files: files, Consent: consent, Extra: p.Extra}
	for _, b := range p.Biosamples {
		bf, bc, err := a.files(b.Files)
		if err != nil {
			return models.Individual{}, err
		}
		out.Biosamples = append(out.Biosamples, models.Biosample{
			ID:           b.ID,
			IndividualID: b.IndividualID,
			Files:        bf,
			Consent:      bc,
			Extra:        b.Extra,
		})
	}
	return out, nil
}

// files resolves the file references of one level and takes out its
// consentpacket. More than one consentpacket at a level is a conflict.
func (a assembler) files(refs []parser.File) ([]models.File, json.RawMessage, error) {
	out := make([]models.File, 0, len(refs))
	var consent json.RawMessage
	for _, ref := range refs {
		f, content, err := a.file(ref)
		if err != nil {
			return nil, nil, err
		}
		if c, ok := parser.ParseConsent(content); ok {
			if consent != nil {
				return nil, nil, a.fail(apperr.ConsentConflict, MsgConsentConflict, apperr.ErrConsentConflict)
			}
			consent = c
			continue
		}
		out = append(out, f)
	}
	return out, consent, nil
}

func (a assembler) file(ref parser.File) (models.File, []byte, error) {
	name, ok := artifactName(ref.URI)
	if !ok || !a.s.live(name) {
		return models.File{}, nil, a.fail(apperr.FileReferenceDangling, MsgUnresolved, apperr.ErrNotFound)
	}
	id, _ := a.s.Current(name)
	sums, err := id.Checksums()
	if err != nil {
		return models.File{}, nil, a.fail(apperr.ChecksumConflict, MsgChecksumsDisagree, err)
	}
	rep := id.Representative()
	return models.File{
		Name: name,
		Artifact: models.ArtifactLink{
			Batch:     id.Batch,
			URIs:      id.URIs(),
			Size:      rep.Size,
			Checksums: sums,
		},
		IndividualToFileIdentifiers: ref.IndividualToFileIdentifiers,
		FileAttributes:              ref.FileAttributes,
		Extra:                       ref.Extra,
	}, rep.Content(), nil
}
