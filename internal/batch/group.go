package batch

import (
	"context"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/manifest"
)

const (
	MsgRootUnlisted     = "Root could not be listed"
	MsgManifestMismatch = "Batch manifest differs from the same batch in another root"

	LabelRoots = "Roots could not be listed"
)

// Group is every batch sharing one name, in root order.
type Group struct {
	Name    string
	Batches []*Batch

	manifest map[string]string
}

// Manifest returns the manifest shared by every member. It is nil until
// LoadManifests succeeds.
func (g *Group) Manifest() map[string]string { return g.manifest }

// Order compares two batch names; later batches supersede earlier ones.
type Order func(a, b string) int

// LexicalOrder is the default batch order.
var LexicalOrder Order = strings.Compare

// collector gathers failures from concurrent operations. Callers check the
// stage context before reporting them, since a cancelled backend call
// surfaces here as an ordinary failure.
type collector struct {
	mu       sync.Mutex
	failures []apperr.Failure
}

func (c *collector) add(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := apperr.As(err); ok {
		c.failures = append(c.failures, e.Failures...)
		return
	}
	c.failures = append(c.failures, apperr.Failure{Message: err.Error(), Category: apperr.ArtifactFetchFailed})
}

func (c *collector) err(label string) error {
	if len(c.failures) == 0 {
		return nil
	}
	return apperr.Fail(label, c.failures...)
}

func newGroup(ctx context.Context, limit int) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return g, gctx
}

// GroupByName lists every root concurrently and folds the batch names into
// groups ordered by order. Members keep the order of roots.
func GroupByName(ctx context.Context, roots []*Root, order Order, limit int) ([]*Group, error) {
	if order == nil {
		order = LexicalOrder
	}
	names := make([][]string, len(roots))
	var c collector
	g, gctx := newGroup(ctx, limit)
	for i, r := range roots {
		g.Go(func() error {
			n, err := r.BatchNames(gctx)
			if err != nil {
				c.add(apperr.Fail(LabelRoots, apperr.Failure{
					Message:  MsgRootUnlisted,
					Category: apperr.RootInvalid,
					Root:     r.Location(),
				}.WithDetail(err)))
				return nil
			}
			names[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.err(LabelRoots); err != nil {
		return nil, err
	}

	byName := make(map[string]*Group)
	for i, r := range roots {
		for _, n := range names[i] {
			grp, ok := byName[n]
			if !ok {
				grp = &Group{Name: n}
				byName[n] = grp
			}
			grp.Batches = append(grp.Batches, r.Batch(n))
		}
	}
	out := make([]*Group, 0, len(byName))
	for _, grp := range byName {
		out = append(out, grp)
	}
	slices.SortFunc(out, func(a, b *Group) int { return order(a.Name, b.Name) })
	return out, nil
}

// LoadEntries checks the entries of every batch in every group. All
// failures are reported together.
func LoadEntries(ctx context.Context, groups []*Group, limit int) error {
	var c collector
	g, gctx := newGroup(ctx, limit)
	for _, grp := range groups {
		for _, b := range grp.Batches {
			g.Go(func() error {
				_, err := b.LoadAndCheckEntries(gctx)
				c.add(err)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.err(LabelEntries)
}

// LoadManifests loads every member manifest and then requires all members
// of a group to agree. On disagreement every member of the group is reported.
func LoadManifests(ctx context.Context, groups []*Group, limit int) error {
	var c collector
	g, gctx := newGroup(ctx, limit)
	for _, grp := range groups {
		for _, b := range grp.Batches {
			g.Go(func() error {
				_, err := b.LoadAndCheckManifest(gctx)
				c.add(err)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.err(LabelManifests); err != nil {
		return err
	}

	for _, grp := range groups {
		first := grp.Batches[0].manifest
		agree := true
		for _, b := range grp.Batches[1:] {
			if !manifest.Equal(first, b.manifest) {
				agree = false
				break
			}
		}
		if !agree {
			for _, b := range grp.Batches {
				c.failures = append(c.failures, b.failure(apperr.ManifestMismatchAcrossRoots, MsgManifestMismatch, ""))
			}
			continue
		}
		grp.manifest = first
	}
	return c.err(LabelManifests)
}
