// Package batch discovers batches under each root, checks their entries
// against the manifest and groups same-named batches across roots.
package batch

import (
	"context"
	"errors"
	"sync"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/artifact"
	"github.com/starford/pfdl/internal/checksum"
	"github.com/starford/pfdl/internal/manifest"
	"github.com/starford/pfdl/internal/storage"
)

// Failure messages reported by batch checks.
const (
	MsgNotPlain          = "Entry is not a plain object (e.g. is a sub-directory or named pipe)"
	MsgEntriesUnlisted   = "Batch entries could not be listed"
	MsgNoManifest        = "No manifest file (e.g. '" + manifest.FileName + "') found in batch"
	MsgManifestUnread    = "Manifest file could not be read"
	MsgManifestEscaped   = "Manifest lines with escaped filenames (leading backslash) are not supported"
	MsgManifestMalformed = "Manifest file is not valid md5sum output"
	MsgListedNotPresent  = "An entry is listed in the manifest but not present"
	MsgPresentNotListed  = "An entry is present but not in the manifest"
	MsgFetchFailed       = "Artifact could not be fetched from storage"
	MsgChecksumMismatch  = "Artifact content does not match the manifest checksum"
)

// Labels of the aggregated errors returned by batch checks.
const (
	LabelEntries   = "Batch entries invalid"
	LabelManifests = "Batch manifests invalid"
	LabelArtifacts = "Artifacts could not be created"
)

// Batch is one named collection of artifacts under one root.
type Batch struct {
	root *Root
	name string

	entriesOnce sync.Once
	entries     []storage.Entry
	entriesErr  error

	manifestOnce sync.Once
	manifest     map[string]string
	manifestErr  error
}

// Name returns the batch name.
func (b *Batch) Name() string { return b.name }

// Root returns the root the batch belongs to.
func (b *Batch) Root() *Root { return b.root }

func (b *Batch) failure(cat apperr.Category, msg, name string) apperr.Failure {
	return apperr.Failure{Message: msg, Category: cat, Root: b.root.Location(), Batch: b.name, Artifact: name}
}

// LoadAndCheckEntries lists the batch and rejects every non-plain entry.
// The result is computed once.
func (b *Batch) LoadAndCheckEntries(ctx context.Context) ([]storage.Entry, error) {
	b.entriesOnce.Do(func() {
		entries, err := b.root.backend.ListEntries(ctx, b.name)
		if err != nil {
			b.entriesErr = apperr.Fail(LabelEntries, b.failure(apperr.EntryInvalid, MsgEntriesUnlisted, "").WithDetail(err))
			return
		}
		var failures []apperr.Failure
		for _, e := range entries {
			if !e.Plain {
				failures = append(failures, b.failure(apperr.EntryInvalid, MsgNotPlain, e.Name))
			}
		}
		if len(failures) > 0 {
			b.entriesErr = apperr.Fail(LabelEntries, failures...)
			return
		}
		b.entries = entries
	})
	return b.entries, b.entriesErr
}

// LoadAndCheckManifest reads the manifest and compares its names with the
// batch's entries. Every missing or extra name is reported together.
func (b *Batch) LoadAndCheckManifest(ctx context.Context) (map[string]string, error) {
	b.manifestOnce.Do(func() {
		b.manifest, b.manifestErr = b.loadManifest(ctx)
	})
	return b.manifest, b.manifestErr
}

func (b *Batch) loadManifest(ctx context.Context) (map[string]string, error) {
	entries, err := b.LoadAndCheckEntries(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(entries))
	found := false
	for _, e := range entries {
		if e.Name == manifest.FileName {
			found = true
			continue
		}
		present[e.Name] = struct{}{}
	}
	if !found {
		return nil, apperr.Fail(LabelManifests, b.failure(apperr.ManifestMissing, MsgNoManifest, ""))
	}

	content, err := b.root.backend.ReadBytes(ctx, b.name, manifest.FileName)
	if err != nil {
		return nil, apperr.Fail(LabelManifests, b.failure(apperr.ArtifactFetchFailed, MsgManifestUnread, manifest.FileName).WithDetail(err))
	}
	m, err := manifest.Parse(content)
	switch {
	case errors.Is(err, apperr.ErrEscapedManifest):
		return nil, apperr.Fail(LabelManifests, b.failure(apperr.ManifestUnsupported, MsgManifestEscaped, manifest.FileName))
	case err != nil:
		return nil, apperr.Fail(LabelManifests, b.failure(apperr.ManifestUnsupported, MsgManifestMalformed, manifest.FileName).WithDetail(err))
	}

	var failures []apperr.Failure
	for name := range m {
		if _, ok := present[name]; !ok {
			failures = append(failures, b.failure(apperr.ManifestContentMismatch, MsgListedNotPresent, name))
		}
	}
	for name := range present {
		if _, ok := m[name]; !ok {
			failures = append(failures, b.failure(apperr.ManifestContentMismatch, MsgPresentNotListed, name))
		}
	}
	if len(failures) > 0 {
		return nil, apperr.Fail(LabelManifests, failures...)
	}
	return m, nil
}

// CreateArtifact describes one entry through the backend and records the
// manifest's checksum as its md5.
func (b *Batch) CreateArtifact(ctx context.Context, name, primary string) (*artifact.Artifact, error) {
	obj, err := b.root.backend.Describe(ctx, b.name, name)
	if err != nil {
		return nil, apperr.Fail(LabelArtifacts, b.failure(apperr.ArtifactFetchFailed, MsgFetchFailed, name).WithDetail(err))
	}
	a := artifact.New(b.root.Location(), b.name, name, obj.Size, obj.URI, obj.Content, obj.Checksums)
	if err := a.SetChecksum(checksum.MD5, primary); err != nil {
		return nil, apperr.Fail(LabelArtifacts, b.failure(apperr.ChecksumConflict, MsgChecksumMismatch, name).WithDetail(err))
	}
	return a, nil
}
