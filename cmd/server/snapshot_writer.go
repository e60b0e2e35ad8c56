package main

import (
	"context"
	"log"
	"path/filepath"

	"citydev.io/internal/persistence/archive"
	"citydev.io/internal/persistence/indexdb"
	"citydev.io/internal/persistence/snapshot"
)

// snapshotWriter persists snapshots handed over by the world loop, archives
// year-closing ones, and feeds the index and the mirror.
type snapshotWriter struct {
	worldDir string
	idx      *indexdb.Index
	mirror   *mirrorRuntime
	logger   *log.Logger
}

func (s *snapshotWriter) run(ctx context.Context, ch <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			// Whatever the loop managed to hand over before stopping is still written.
			for {
				select {
				case snap := <-ch:
					s.handle(snap)
				default:
					return
				}
			}
		case snap := <-ch:
			s.handle(snap)
		}
	}
}

func (s *snapshotWriter) handle(snap snapshot.SnapshotV1) (path string, ok bool) {
	path = filepath.Join(s.worldDir, "snapshots", snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		s.printf("snapshot write tick=%d: %v", snap.Header.Tick, err)
		return "", false
	}
	s.mirror.Enqueue(path)
	s.idx.RecordSnapshot(path, snap)

	year, archivedPath, archived, err := archive.ArchiveYearSnapshot(s.worldDir, path, snap)
	if err != nil {
		s.printf("archive year snapshot tick=%d: %v", snap.Header.Tick, err)
		return path, true
	}
	if archived {
		s.printf("archived year=%d tick=%d", year, snap.Header.Tick)
		s.idx.RecordYear(year, snap.Header.Tick, archivedPath, snap.SeedDigest)
		s.mirror.Enqueue(archivedPath)
		s.mirror.EnqueueIfExists(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	}
	return path, true
}

func (s *snapshotWriter) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
