package loader

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/artifact"
	"github.com/starford/pfdl/internal/parser"
)

// Phenopacket check messages.
const (
	MsgSubjectMissing   = "Phenopacket must have a subject with a non-empty id"
	MsgFamilyIDMissing  = "Family Phenopacket must have an id representing the identifier of the family as a group"
	MsgUnrecognised     = "Phenopacket artifact was found but was not recognised as an individual or family phenopacket"
	MsgFileNoURI        = "Phenopacket contained a file entry with no URI"
	MsgUnreferenced     = "Artifact was not referenced by any phenopacket"
	msgAbsoluteURI      = "Phenopacket contained a file URI '%s' that is an absolute URI"
	msgDeletedReference = "Phenopacket contained a file entry '%s' that is referencing a deleted artifact of the dataset"
	msgMissingReference = "Phenopacket contained a file entry '%s' that is referencing a non-existent artifact in the dataset"

	LabelDocuments = "Phenopackets invalid"
)

// CheckDocuments validates every current phenopacket against the artifact
// history: each file reference must resolve to a live artifact, and when
// that holds every live artifact must be referenced by some phenopacket.
func (l *Loader) CheckDocuments(s *Structure) error {
	used := make(map[string]struct{})
	var failures []apperr.Failure

	for _, name := range s.Names() {
		if s.IsDeleted(name) {
			continue
		}
		id, _ := s.Current(name)
		rep := id.Representative()
		fail := func(cat apperr.Category, msg string) apperr.Failure {
			return apperr.Failure{Message: msg, Category: cat, Root: rep.Root, Batch: rep.Batch, Artifact: rep.Name}
		}

		doc, err := parser.Parse(rep.Content())
		if err != nil {
			failures = append(failures, fail(apperr.DocumentUnrecognized, MsgUnrecognised).WithDetail(err))
			continue
		}
		if doc == nil {
			continue
		}
		used[name] = struct{}{}
		l.logger.Debug("loader: phenopacket recognised",
			slog.String("artifact", name),
			slog.String("kind", doc.Kind.String()))

		var refs []parser.File
		switch doc.Kind {
		case parser.KindIndividual:
			if doc.Individual.Subject == nil || doc.Individual.Subject.ID == "" {
				failures = append(failures, fail(apperr.DocumentFieldMissing, MsgSubjectMissing))
				l.logger.Warn("loader: phenopacket without subject", slog.String("artifact", name))
				return apperr.Fail(LabelDocuments, failures...)
			}
			refs = individualFiles(doc.Individual)
		case parser.KindFamily:
			if doc.Family.ID == "" {
				failures = append(failures, fail(apperr.DocumentFieldMissing, MsgFamilyIDMissing))
				continue
			}
			refs = familyFiles(doc.Family)
		}

		for _, ref := range refs {
			if ref.URI == "" {
				failures = append(failures, fail(apperr.FileReferenceInvalid, MsgFileNoURI))
				continue
			}
			target, ok := artifactName(ref.URI)
			switch {
			case !ok:
				failures = append(failures, fail(apperr.FileReferenceInvalid, fmt.Sprintf(msgAbsoluteURI, ref.URI)))
			case s.live(target):
				used[target] = struct{}{}
				for _, suffix := range l.companions {
					if s.live(target + suffix) {
						used[target+suffix] = struct{}{}
					}
				}
			case s.IsDeleted(target):
				failures = append(failures, fail(apperr.FileReferenceDangling, fmt.Sprintf(msgDeletedReference, ref.URI)))
			default:
				failures = append(failures, fail(apperr.FileReferenceDangling, fmt.Sprintf(msgMissingReference, ref.URI)))
			}
		}
	}
	if len(failures) > 0 {
		return apperr.Fail(LabelDocuments, failures...)
	}

	for _, name := range s.Names() {
		if _, ok := used[name]; ok || s.IsDeleted(name) {
			continue
		}
		id, _ := s.Current(name)
		failures = append(failures, unreferenced(id))
	}
	if len(failures) > 0 {
		return apperr.Fail(LabelDocuments, failures...)
	}
	return nil
}

func unreferenced(id artifact.Identity) apperr.Failure {
	rep := id.Representative()
	return apperr.Failure{
		Message:  MsgUnreferenced,
		Category: apperr.ArtifactUnreferenced,
		Root:     rep.Root,
		Batch:    rep.Batch,
		Artifact: rep.Name,
	}
}

// artifactName resolves a file reference to the artifact name it points at.
// References are relative to the dataset: a bare name, or a file URI whose
// path does not start with a slash.
func artifactName(uri string) (string, bool) {
	var name string
	switch {
	case strings.HasPrefix(uri, "file://"):
		name = uri[len("file://"):]
	case strings.HasPrefix(uri, "file:/"):
		name = uri[len("file:/"):]
	case strings.Contains(uri, ":"):
		return "", false
	default:
		name = uri
	}
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}
	return name, true
}

// individualFiles gathers the files of a phenopacket and of its biosamples.
func individualFiles(p *parser.Phenopacket) []parser.File {
	if p == nil {
		return nil
	}
	out := append([]parser.File(nil), p.Files...)
	for _, b := range p.Biosamples {
		out = append(out, b.Files...)
	}
	return out
}

// familyFiles gathers the files of a family, its proband and its relatives.
func familyFiles(f *parser.Family) []parser.File {
	out := append([]parser.File(nil), f.Files...)
	out = append(out, individualFiles(f.Proband)...)
	for i := range f.Relatives {
		out = append(out, individualFiles(&f.Relatives[i])...)
	}
	return out
}
