package submux

import (
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/go-faster/errors"
	"github.com/kurtskinny/twitch-chat-core/internal/eventclient"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/storage"
)

var subscriptionsBucket = []byte("subscriptions")

// Store durably persists the live subscription set so a process restart
// can re-subscribe without waiting for callers to re-request, grounded
// on the teacher's session/state persistence pattern (tgupdates.Manager
// resuming MTProto updates from a file-backed offset) — here backed by
// bbolt, already a teacher dependency, rather than a bespoke file format:
// bbolt's own transaction commit gives the same atomicity
// infra/storage.AtomicWriteFile provides for plain files, so the subtler
// temp-file-then-rename dance isn't needed here.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (creating if absent) a bbolt database at path and
// ensures the subscriptions bucket exists.
func OpenStore(path string) (*Store, error) {
	if err := storage.EnsureDir(path); err != nil {
		return nil, errors.Wrap(err, "ensure subscription store directory")
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open subscription store")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(subscriptionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create subscriptions bucket")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists the full live subscription set, replacing whatever was
// previously stored.
func (s *Store) Save(subs []eventclient.Subscription) error {
	data, err := json.Marshal(subs)
	if err != nil {
		return errors.Wrap(err, "marshal subscriptions")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(subscriptionsBucket).Put([]byte("live"), data)
	})
}

// Load returns the previously persisted subscription set, or an empty
// slice if nothing has been saved yet.
func (s *Store) Load() ([]eventclient.Subscription, error) {
	var subs []eventclient.Subscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(subscriptionsBucket).Get([]byte("live"))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &subs)
	})
	if err != nil {
		return nil, errors.Wrap(err, "load subscriptions")
	}
	return subs, nil
}
