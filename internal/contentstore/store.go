// Package contentstore holds extracted file content per conversation thread.
// Entries are written by the ingestion endpoint and read by the file tools.
package contentstore

import (
	"sort"
	"sync"
	"time"

	"agentgate/internal/domain"
)

type entry struct {
	record   domain.FileRecord
	storedAt time.Time
}

// Store is the in-process content store. It is safe for concurrent use
// across threads; callers within one thread are serialized by the workflow.
type Store struct {
	mu      sync.RWMutex
	threads map[string]map[string]entry
}

func NewStore() *Store {
	return &Store{threads: map[string]map[string]entry{}}
}

func (s *Store) Put(threadID string, record domain.FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.threads[threadID]
	if !ok {
		files = map[string]entry{}
		s.threads[threadID] = files
	}
	files[record.FileID] = entry{record: record, storedAt: time.Now()}
}

func (s *Store) Get(threadID, fileID string) (domain.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.threads[threadID][fileID]
	if !ok {
		return domain.FileRecord{}, false
	}
	return e.record, true
}

// List returns the metadata of every file in a thread, oldest first.
func (s *Store) List(threadID string) []domain.FileMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := s.threads[threadID]
	entries := make([]entry, 0, len(files))
	for _, e := range files {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].storedAt.Equal(entries[j].storedAt) {
			return entries[i].record.FileID < entries[j].record.FileID
		}
		return entries[i].storedAt.Before(entries[j].storedAt)
	})
	out := make([]domain.FileMetadata, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.record.Metadata())
	}
	return out
}

func (s *Store) Delete(threadID, fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.threads[threadID]
	if !ok {
		return false
	}
	if _, ok := files[fileID]; !ok {
		return false
	}
	delete(files, fileID)
	if len(files) == 0 {
		delete(s.threads, threadID)
	}
	return true
}

// DeleteThread drops all entries owned by a thread, typically when the
// thread itself is deleted.
func (s *Store) DeleteThread(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.threads[threadID])
	delete(s.threads, threadID)
	return n
}

// PruneOlderThan removes entries stored before the cutoff and reports how
// many were dropped. Used by the retention sweep.
func (s *Store) PruneOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for threadID, files := range s.threads {
		for fileID, e := range files {
			if e.storedAt.Before(cutoff) {
				delete(files, fileID)
				pruned++
			}
		}
		if len(files) == 0 {
			delete(s.threads, threadID)
		}
	}
	return pruned
}
