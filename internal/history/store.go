package history

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"askweb/internal/storage"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultMaxRecords is the history cap.
const DefaultMaxRecords = 50

// DefaultKey is the storage key holding the serialized history.
const DefaultKey = "searchHistory"

// Store is the ordered, capped collection of search records, most recent first.
type Store struct {
	backend    storage.Storage
	key        string
	maxRecords int
	logger     *zap.Logger

	mu       sync.RWMutex
	records  []Record
	activeID string
}

// NewStore creates an empty store. Call Load to read persisted history.
func NewStore(backend storage.Storage, key string, maxRecords int, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:    backend,
		key:        key,
		maxRecords: maxRecords,
		logger:     logger,
		records:    []Record{},
	}
}

// Load reads the persisted history. Missing or unreadable data leaves the
// store empty; the returned error is informational only.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = []Record{}
	s.activeID = ""

	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("history unreadable, starting empty", zap.String("key", s.key), zap.Error(err))
		return errors.Wrap(err, "failed to read history")
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("history corrupt, starting empty", zap.String("key", s.key), zap.Error(err))
		return errors.Wrap(err, "failed to parse history")
	}

	if len(records) > s.maxRecords {
		records = records[:s.maxRecords]
	}
	s.records = records
	s.logger.Debug("history loaded", zap.Int("records", len(records)))

	return nil
}

// Append inserts rec at the front and drops entries past the cap. The
// in-memory view is updated even when persisting fails.
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.records)+1)
	records = append(records, rec)
	records = append(records, s.records...)
	if len(records) > s.maxRecords {
		for _, dropped := range records[s.maxRecords:] {
			s.logger.Debug("evicting record", zap.String("record_id", dropped.ID))
		}
		records = records[:s.maxRecords]
	}
	s.records = records

	return s.saveUnlocked(ctx)
}

// FindByID looks up a record by id.
func (s *Store) FindByID(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findUnlocked(id)
}

func (s *Store) findUnlocked(id string) (Record, bool) {
	if id == "" {
		return Record{}, false
	}
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Resolve maps ref to a record id. ref is a full id or a unique suffix of
// at least four characters, as shown in history listings.
func (s *Store) Resolve(ref string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.findUnlocked(ref); ok {
		return rec.ID, true
	}
	if len(ref) < 4 {
		return "", false
	}

	var match string
	for _, r := range s.records {
		if strings.HasSuffix(r.ID, ref) {
			if match != "" {
				return "", false
			}
			match = r.ID
		}
	}
	return match, match != ""
}

// Parent resolves a follow-up's parent. A dangling ParentID reports false.
func (s *Store) Parent(rec Record) (Record, bool) {
	if !rec.IsFollowup {
		return Record{}, false
	}
	return s.FindByID(rec.ParentID)
}

// Clear empties the history, its persisted copy and the active pointer.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = []Record{}
	s.activeID = ""

	if err := s.backend.Delete(ctx, s.key); err != nil {
		return errors.Wrap(err, "failed to clear history")
	}
	return nil
}

// SetActive points the session at a known record. Stored data is untouched.
func (s *Store) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findUnlocked(id); !ok {
		return false
	}
	s.activeID = id
	return true
}

// ActiveID returns the id of the displayed record, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Records returns a copy of the ordered view, most recent first.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Latest returns the most recent record.
func (s *Store) Latest() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return Record{}, false
	}
	return s.records[0], true
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// saveUnlocked rewrites the whole collection (must be called with lock held)
func (s *Store) saveUnlocked(ctx context.Context) error {
	data, err := json.Marshal(s.records)
	if err != nil {
		return errors.Wrap(err, "failed to marshal history")
	}

	if err := s.backend.Put(ctx, s.key, data); err != nil {
		return errors.Wrap(err, "failed to persist history")
	}

	return nil
}
