package loader

import (
	"context"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/artifact"
	"github.com/starford/pfdl/internal/batch"
)

const (
	MsgChecksumsDisagree = "Artifact checksums differ between roots"

	LabelHistory = "Artifact history could not be built"
)

// Structure is the reconciled view of every root: each artifact name with
// its latest-first history, and the names that are deleted.
type Structure struct {
	Artifacts map[string]artifact.History `json:"artifacts"`
	Deleted   map[string]struct{}         `json:"-"`
}

func newStructure() *Structure {
	return &Structure{
		Artifacts: make(map[string]artifact.History),
		Deleted:   make(map[string]struct{}),
	}
}

// Names returns every artifact name in lexical order.
func (s *Structure) Names() []string {
	return slices.Sorted(maps.Keys(s.Artifacts))
}

// Current returns the latest identity of name.
func (s *Structure) Current(name string) (artifact.Identity, bool) {
	return s.Artifacts[name].Current()
}

// IsDeleted reports whether name is marked deleted.
func (s *Structure) IsDeleted(name string) bool {
	_, ok := s.Deleted[name]
	return ok
}

// Delete marks name deleted. The name keeps its history.
func (s *Structure) Delete(name string) {
	if s.Deleted == nil {
		s.Deleted = make(map[string]struct{})
	}
	s.Deleted[name] = struct{}{}
}

// live reports whether name has a history and is not deleted.
func (s *Structure) live(name string) bool {
	_, ok := s.Artifacts[name]
	return ok && !s.IsDeleted(name)
}

// buildHistory creates one artifact per manifest entry per member batch and
// folds the groups, in batch order, into latest-first histories.
func (l *Loader) buildHistory(ctx context.Context, groups []*batch.Group) (*Structure, error) {
	s := newStructure()
	var (
		mu       sync.Mutex
		failures []apperr.Failure
	)
	for _, grp := range groups {
		m := grp.Manifest()
		names := slices.Sorted(maps.Keys(m))
		created := make([][]*artifact.Artifact, len(names))

		g, gctx := errgroup.WithContext(ctx)
		if l.concurrency > 0 {
			g.SetLimit(l.concurrency)
		}
		for i, name := range names {
			created[i] = make([]*artifact.Artifact, len(grp.Batches))
			for j, b := range grp.Batches {
				g.Go(func() error {
					a, err := b.CreateArtifact(gctx, name, m[name])
					if err != nil {
						mu.Lock()
						failures = append(failures, fetchFailures(err)...)
						mu.Unlock()
						return nil
					}
					created[i][j] = a
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(failures) > 0 {
			continue
		}

		for i, name := range names {
			id := artifact.Identity{Batch: grp.Name, Name: name, Artifacts: created[i]}
			if _, err := id.Checksums(); err != nil {
				rep := id.Representative()
				failures = append(failures, apperr.Failure{
					Message:  MsgChecksumsDisagree,
					Category: apperr.ChecksumConflict,
					Root:     rep.Root,
					Batch:    grp.Name,
					Artifact: name,
				}.WithDetail(err))
				continue
			}
			s.Artifacts[name] = s.Artifacts[name].Prepend(id)
		}
	}
	if len(failures) > 0 {
		return nil, apperr.Fail(LabelHistory, failures...)
	}
	return s, nil
}

func fetchFailures(err error) []apperr.Failure {
	if e, ok := apperr.As(err); ok {
		return e.Failures
	}
	return []apperr.Failure{{Message: err.Error(), Category: apperr.ArtifactFetchFailed}}
}
