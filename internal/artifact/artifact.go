// Package artifact models named content objects and their version history.
package artifact

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/starford/pfdl/internal/checksum"
)

// Artifact is one named object within one batch of one root.
type Artifact struct {
	Root  string
	Batch string
	Name  string
	Size  int64
	URI   string

	content   []byte
	checksums checksum.Set
}

// New creates an artifact. content is retained as given and should be nil
// for objects above the content limit.
func New(root, batch, name string, size int64, uri string, content []byte, sums checksum.Set) *Artifact {
	return &Artifact{
		Root:      root,
		Batch:     batch,
		Name:      name,
		Size:      size,
		URI:       uri,
		content:   content,
		checksums: sums.Clone(),
	}
}

// Content returns the retained bytes, or nil for large objects.
func (a *Artifact) Content() []byte { return a.content }

// SetChecksum records a digest. Each algorithm may be set once; setting it
// again to a different value fails.
func (a *Artifact) SetChecksum(alg checksum.Algorithm, value string) error {
	if err := a.checksums.Put(alg, value); err != nil {
		return fmt.Errorf("artifact %s/%s: %w", a.Batch, a.Name, err)
	}
	return nil
}

// Checksum returns the digest recorded for alg.
func (a *Artifact) Checksum(alg checksum.Algorithm) (string, bool) {
	return a.checksums.Get(alg)
}

// Checksums returns a copy of every recorded digest.
func (a *Artifact) Checksums() checksum.Set { return a.checksums.Clone() }

func (a *Artifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Root      string       `json:"root"`
		URI       string       `json:"uri"`
		Size      int64        `json:"size"`
		Checksums checksum.Set `json:"checksums"`
	}{a.Root, a.URI, a.Size, a.checksums})
}

// Identity is the set of per-root artifacts that stand for one logical
// object: same batch name, same artifact name, equal manifests.
type Identity struct {
	Batch     string      `json:"batch"`
	Name      string      `json:"-"`
	Artifacts []*Artifact `json:"artifacts"`
}

// Representative returns the artifact from the first root.
func (i Identity) Representative() *Artifact {
	if len(i.Artifacts) == 0 {
		return nil
	}
	return i.Artifacts[0]
}

// URIs returns one URI per root, in root order.
func (i Identity) URIs() []string {
	out := make([]string, 0, len(i.Artifacts))
	for _, a := range i.Artifacts {
		out = append(out, a.URI)
	}
	return out
}

// Checksums reconciles the digests reported by every member.
func (i Identity) Checksums() (checksum.Set, error) {
	sets := make([]checksum.Set, 0, len(i.Artifacts))
	for _, a := range i.Artifacts {
		sets = append(sets, a.checksums)
	}
	merged, err := checksum.Reconcile(sets...)
	if err != nil {
		return nil, fmt.Errorf("artifact %s/%s: %w", i.Batch, i.Name, err)
	}
	return merged, nil
}

// History is the latest-first sequence of identities for one name.
type History []Identity

// Current returns the head of the history.
func (h History) Current() (Identity, bool) {
	if len(h) == 0 {
		return Identity{}, false
	}
	return h[0], true
}

// Prepend returns a history with id as the new current value.
func (h History) Prepend(id Identity) History {
	return slices.Insert(slices.Clone(h), 0, id)
}
