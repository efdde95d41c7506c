package cursorstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/veloradata/chainstream/internal/stream"
)

const openTimeout = 5 * time.Second

// Store persists cursor states in a bbolt file, one bucket per source
// chain. A consumer that crashes mid-stream reopens the store and resumes
// from its last saved position.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open creates or opens the cursor database at path, creating parent
// directories as needed.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cursor store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening cursor store %s: %w", path, err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// key identifies one logical stream: one account and operation on a source.
func key(accountID, operation string) []byte {
	return []byte(accountID + "/" + operation)
}

// Save writes the cursor state for one stream, replacing any previous one.
func (s *Store) Save(source, accountID, operation string, state stream.CursorState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding cursor state: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(source))
		if err != nil {
			return err
		}
		return bucket.Put(key(accountID, operation), payload)
	})
	if err != nil {
		return fmt.Errorf("saving cursor for %s/%s/%s: %w", source, accountID, operation, err)
	}

	if s.logger != nil {
		s.logger.Debug("Cursor saved",
			slog.String("source", source),
			slog.String("account", accountID),
			slog.String("operation", operation),
			slog.Int64("total_fetched", state.TotalFetched))
	}
	return nil
}

// Load reads the cursor state for one stream. The second return is false
// when no state has been saved.
func (s *Store) Load(source, accountID, operation string) (stream.CursorState, bool, error) {
	var payload []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(source))
		if bucket == nil {
			return nil
		}
		if raw := bucket.Get(key(accountID, operation)); raw != nil {
			payload = make([]byte, len(raw))
			copy(payload, raw)
		}
		return nil
	})
	if err != nil {
		return stream.CursorState{}, false, fmt.Errorf("loading cursor for %s/%s/%s: %w", source, accountID, operation, err)
	}
	if payload == nil {
		return stream.CursorState{}, false, nil
	}

	var state stream.CursorState
	if err := json.Unmarshal(payload, &state); err != nil {
		return stream.CursorState{}, false, fmt.Errorf("decoding cursor state: %w", err)
	}
	return state, true, nil
}

// Delete removes the cursor state for one stream. Deleting a missing key is
// not an error.
func (s *Store) Delete(source, accountID, operation string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(source))
		if bucket == nil {
			return nil
		}
		return bucket.Delete(key(accountID, operation))
	})
	if err != nil {
		return fmt.Errorf("deleting cursor for %s/%s/%s: %w", source, accountID, operation, err)
	}
	return nil
}

// Keys lists every stream key saved under a source.
func (s *Store) Keys(source string) ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(source))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing cursors for %s: %w", source, err)
	}
	return keys, nil
}
