// Package cache implements the response cache: a namespaced TTL store for
// backend response envelopes, backed by an embedded BadgerDB.
//
// The cache is best-effort acceleration only. Reads never fail loudly
// (a corrupted or expired entry is a miss) and writes never surface
// errors to callers; a write that cannot be stored is dropped after one
// sweep-and-retry.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ai-labc/cropai/internal/domain"
)

// DefaultTTL is how long a cached envelope stays readable.
const DefaultTTL = 7 * 24 * time.Hour

// keyPrefix namespaces every key this cache owns, so Clear never touches
// unrelated data in a shared database.
const keyPrefix = "cropai:v1:"

// Store is the capability the gateway and orchestrator depend on.
type Store interface {
	// Get returns the cached payload only while it is unexpired.
	Get(fingerprint string) ([]byte, bool)
	// Set stores payload with expiry now+ttl. Best-effort; never errors.
	Set(fingerprint string, payload []byte, ttl time.Duration)
	// ClearExpired sweeps all owned entries, removing expired ones, and
	// reports how many were removed.
	ClearExpired() int
	// Clear removes the given entries, or every owned entry when called
	// with no arguments.
	Clear(fingerprints ...string)
}

// entry wraps a cached payload with its storage and expiry timestamps.
type entry struct {
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Payload   json.RawMessage `json:"payload"`
}

// Config controls where the cache lives.
type Config struct {
	// Path is the directory for the database files. Ignored when
	// InMemory is true.
	Path string
	// InMemory disables disk persistence. Used in tests and when no
	// cache directory is configured.
	InMemory bool
}

// BadgerStore is the badger-backed Store implementation.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open creates a BadgerStore. Badger's own logging is routed through the
// given slog logger at debug level.
func Open(cfg Config, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Get returns the cached payload iff now <= expiresAt. Expired or
// corrupted entries are evicted and reported as a miss. Never errors.
func (s *BadgerStore) Get(fingerprint string) ([]byte, bool) {
	key := []byte(keyPrefix + fingerprint)

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.ExpiresAt.IsZero() {
		s.logger.Debug("evicting corrupted cache entry", "fingerprint", fingerprint)
		s.delete(key)
		return nil, false
	}
	if domain.Now().After(e.ExpiresAt) {
		s.delete(key)
		return nil, false
	}
	return e.Payload, true
}

// Set stores the payload with expiry now+ttl. On a storage failure it
// sweeps expired entries and retries once; a second failure drops the
// write silently.
func (s *BadgerStore) Set(fingerprint string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := domain.Now()
	raw, err := json.Marshal(entry{
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
		Payload:   payload,
	})
	if err != nil {
		return
	}

	key := []byte(keyPrefix + fingerprint)
	if err := s.write(key, raw); err != nil {
		s.ClearExpired()
		if err := s.write(key, raw); err != nil {
			s.logger.Debug("dropping cache write", "fingerprint", fingerprint, "error", err)
		}
	}
}

// ClearExpired sweeps every owned entry and removes the expired ones.
// Safe to call at any time; concurrent reads tolerate entries
// disappearing mid-scan.
func (s *BadgerStore) ClearExpired() int {
	now := domain.Now()
	expired := s.collectKeys(func(e entry, ok bool) bool {
		return !ok || now.After(e.ExpiresAt)
	})
	s.deleteAll(expired)
	return len(expired)
}

// Clear removes the named entries, or everything under the namespace
// prefix when called with no arguments.
func (s *BadgerStore) Clear(fingerprints ...string) {
	if len(fingerprints) == 0 {
		s.deleteAll(s.collectKeys(func(entry, bool) bool { return true }))
		return
	}
	for _, fp := range fingerprints {
		s.delete([]byte(keyPrefix + fp))
	}
}

// collectKeys scans the namespace and returns the keys the predicate
// selects. Corrupted entries arrive with ok=false.
func (s *BadgerStore) collectKeys(match func(e entry, ok bool) bool) [][]byte {
	var keys [][]byte
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			var e entry
			ok := err == nil && json.Unmarshal(raw, &e) == nil && !e.ExpiresAt.IsZero()
			if match(e, ok) {
				keys = append(keys, item.KeyCopy(nil))
			}
		}
		return nil
	})
	return keys
}

func (s *BadgerStore) write(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) delete(key []byte) {
	_ = s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) deleteAll(keys [][]byte) {
	for _, key := range keys {
		s.delete(key)
	}
}

// badgerLogger adapts slog.Logger to badger's Logger interface. Badger is
// chatty at startup, so everything lands at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
