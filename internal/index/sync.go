package index

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"

	"github.com/starford/pfdl/internal/artifact"
	"github.com/starford/pfdl/internal/checksum"
)

// SyncStats counts what one Sync changed.
type SyncStats struct {
	Upserted  int
	Removed   int
	Unchanged int
}

// Sync brings the index up to date with an artifact history:
//   - new or changed artifacts are upserted with all their versions
//   - artifacts no longer in the history are deleted from the index
func Sync(db ArtifactIndex, artifacts map[string]artifact.History, deleted map[string]struct{}, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats
	stored, err := db.AllFingerprints()
	if err != nil {
		return stats, err
	}

	for _, name := range slices.Sorted(maps.Keys(artifacts)) {
		_, isDeleted := deleted[name]
		row, versions := rowsOf(name, artifacts[name], isDeleted)
		if fp, ok := stored[name]; ok && fp == row.Fingerprint {
			stats.Unchanged++
			continue
		}
		if err := db.UpsertArtifact(row, versions); err != nil {
			logger.Warn("sync: index failed", slog.String("artifact", name), slog.String("error", err.Error()))
			continue
		}
		stats.Upserted++
		logger.Debug("sync: indexed", slog.String("artifact", name), slog.String("batch", row.Batch))
	}

	for name := range stored {
		if _, ok := artifacts[name]; ok {
			continue
		}
		if err := db.DeleteArtifact(name); err != nil {
			logger.Warn("sync: delete failed", slog.String("artifact", name), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("sync: removed stale", slog.String("artifact", name))
	}
	return stats, nil
}

// rowsOf flattens one history into its artifact row and version rows.
func rowsOf(name string, h artifact.History, deleted bool) (ArtifactRow, []VersionRow) {
	row := ArtifactRow{Name: name, Versions: len(h), Deleted: deleted}
	var versions []VersionRow
	for pos, id := range h {
		for _, a := range id.Artifacts {
			versions = append(versions, VersionRow{
				Name:      name,
				Position:  pos,
				Batch:     id.Batch,
				Root:      a.Root,
				URI:       a.URI,
				Size:      a.Size,
				Checksums: a.Checksums(),
			})
		}
	}
	if cur, ok := h.Current(); ok {
		row.Batch = cur.Batch
		row.URIs = cur.URIs()
		if rep := cur.Representative(); rep != nil {
			row.Size = rep.Size
		}
		sums, err := cur.Checksums()
		if err != nil {
			sums = checksum.Set{}
		}
		row.Checksums = sums
	}
	row.Fingerprint = fingerprint(row, versions)
	return row, versions
}

// fingerprint identifies the indexed content of an artifact so unchanged
// histories are skipped.
func fingerprint(row ArtifactRow, versions []VersionRow) string {
	data, _ := json.Marshal(struct {
		Deleted  bool
		Versions []VersionRow
	}{row.Deleted, versions})
	return checksum.BLAKE3Hex(data)
}
