package player

import (
	"sync"

	"github.com/trezcool/assessly/core/attempt"
)

type storeEntry struct {
	answer    attempt.Answer
	version   uint64
	persisted uint64 // version last acknowledged by the server; 0 if never
}

func (e *storeEntry) dirty() bool { return e.version != e.persisted }

// AnswerStore holds the learner's current answer per question ID.
// Writes are local and synchronous; persistence is tracked with per-write versions
// so that a late acknowledgement never marks a newer draft as persisted.
type AnswerStore struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
	seq     uint64
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{entries: make(map[string]*storeEntry)}
}

// Load replaces the store content with answers already saved on the server.
func (s *AnswerStore) Load(saved []attempt.SavedAnswer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*storeEntry, len(saved))
	for _, sa := range saved {
		s.seq++
		s.entries[sa.QuestionID] = &storeEntry{answer: sa.Answer.Clone(), version: s.seq, persisted: s.seq}
	}
}

// Set records a draft answer and returns its version.
func (s *AnswerStore) Set(questionID string, ans attempt.Answer) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e, ok := s.entries[questionID]
	if !ok {
		e = new(storeEntry)
		s.entries[questionID] = e
	}
	e.answer = ans.Clone()
	e.version = s.seq
	return e.version
}

func (s *AnswerStore) Get(questionID string) (attempt.Answer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[questionID]
	if !ok {
		return attempt.Answer{}, false
	}
	return e.answer.Clone(), true
}

// Draft returns the answer with its version, and whether it still needs to be saved.
func (s *AnswerStore) Draft(questionID string) (ans attempt.Answer, version uint64, dirty bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[questionID]
	if !ok {
		return attempt.Answer{}, 0, false
	}
	return e.answer.Clone(), e.version, e.dirty()
}

// MarkPersisted records a server acknowledgement for version.
// It reports false when the answer changed since that version was sent.
func (s *AnswerStore) MarkPersisted(questionID string, version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[questionID]
	if !ok || e.version != version {
		return false
	}
	e.persisted = version
	return true
}

func (s *AnswerStore) IsPersisted(questionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[questionID]
	return ok && !e.dirty()
}

// Dirty lists the IDs of answers not yet acknowledged, following the given question order.
func (s *AnswerStore) Dirty(order []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for _, id := range order {
		if e, ok := s.entries[id]; ok && e.dirty() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *AnswerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of every answer held.
func (s *AnswerStore) Entries() map[string]attempt.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]attempt.Answer, len(s.entries))
	for id, e := range s.entries {
		all[id] = e.answer.Clone()
	}
	return all
}
