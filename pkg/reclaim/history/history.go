// Package history persists finished runs in a Badger database so they can
// be listed, inspected and pruned later.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/pipeline"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
)

// Key prefixes.
const (
	prefixRun   = "r:" // r:<start nanos, zero padded>:<id> -> Run
	prefixID    = "i:" // i:<id> -> run key
	prefixMeta  = "m:"
	schemaKey   = prefixMeta + "__schema__"
	nanosDigits = 20
)

// CurrentSchemaVersion is the layout written by this build.
const CurrentSchemaVersion = 1

var (
	// ErrNotFound is returned when no run matches an id.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguous is returned when an id prefix matches several runs.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// Run is one persisted pipeline run.
type Run struct {
	ID      string                 `json:"id"`
	Mode    string                 `json:"mode"`
	Stats   stats.Snapshot         `json:"stats"`
	Stages  []pipeline.StageResult `json:"stages"`
	Records []stats.Record         `json:"records,omitempty"`
}

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the run history backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{log: logging.Get("history")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	s := &Store{db: db}

	if err := s.checkSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) checkSchema() error {
	var schema *Schema
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			schema = &Schema{}
			return json.Unmarshal(val, schema)
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		data, err := json.Marshal(Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()})
		if err != nil {
			return err
		}
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(schemaKey), data)
		})
	case err != nil:
		return fmt.Errorf("reading history schema: %w", err)
	case schema.Version > CurrentSchemaVersion:
		return fmt.Errorf("history schema version %d is newer than supported version %d", schema.Version, CurrentSchemaVersion)
	}
	return nil
}

func runKey(start time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%0*d:%s", prefixRun, nanosDigits, start.UnixNano(), id))
}

// Put stores a run. The run's start time orders the listing.
func (s *Store) Put(run *Run) error {
	if run.ID == "" {
		return errors.New("run has no id")
	}
	if run.Stats.StartTime.IsZero() {
		run.Stats.StartTime = time.Now()
	}
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	key := runKey(run.Stats.StartTime, run.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixID+run.ID), key)
	})
}

// List returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) List(limit int) ([]*Run, error) {
	var runs []*Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefixRun)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the largest key not after the seek key.
		seek := []byte(prefixRun + "\xff")
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return err
			}
			runs = append(runs, &run)
		}
		return nil
	})
	return runs, err
}

// Get returns the run with the given id. A unique prefix of an id is
// accepted too.
func (s *Store) Get(id string) (*Run, error) {
	var run Run
	err := s.db.View(func(txn *badger.Txn) error {
		key, err := s.lookup(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) lookup(txn *badger.Txn, id string) ([]byte, error) {
	if id == "" {
		return nil, badger.ErrKeyNotFound
	}
	if item, err := txn.Get([]byte(prefixID + id)); err == nil {
		return item.ValueCopy(nil)
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixID + id)
	it := txn.NewIterator(opts)
	defer it.Close()

	var key []byte
	for it.Rewind(); it.Valid(); it.Next() {
		if key != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
		}
		v, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		key = v
	}
	if key == nil {
		return nil, badger.ErrKeyNotFound
	}
	return key, nil
}

// Prune deletes runs that started before cutoff and returns how many were
// removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixRun)
		it := txn.NewIterator(opts)
		defer it.Close()

		limit := runKey(cutoff, "")
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(limit) {
				break
			}
			keys = append(keys, key)
		}

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if id := idFromKey(key); id != "" {
				if err := txn.Delete([]byte(prefixID + id)); err != nil {
					return err
				}
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Clear removes every run.
func (s *Store) Clear() (int, error) {
	return s.Prune(time.Unix(0, 1<<62))
}

func idFromKey(key []byte) string {
	rest := strings.TrimPrefix(string(key), prefixRun)
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[i+1:]
	}
	return ""
}

// badgerLogger routes Badger's own messages into the history component log.
type badgerLogger struct {
	log *logging.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
