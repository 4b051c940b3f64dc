package replica

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/opchan/core/core"
)

// Durable is the persistence boundary the in-memory Replica mirrors writes
// to. One bucket per collection, grounded on the teacher's one-table-per-
// repository layout (x/key.repository, x/message.repository), ported from
// gorm/Postgres rows to bbolt key/value buckets.
type Durable interface {
	SaveMessage(msg core.Message) error
	LoadAllMessages() ([]core.Message, error)

	SaveBookmark(b core.Bookmark) error
	DeleteBookmark(id string) error
	LoadBookmarks() ([]core.Bookmark, error)

	SaveFollowing(f core.Following) error
	DeleteFollowing(id string) error
	LoadFollowing() ([]core.Following, error)

	Close() error
}

var (
	messagesBucket  = []byte("messages")
	bookmarksBucket = []byte("bookmarks")
	followingBucket = []byte("following")
)

// BoltStore is the durable implementation backing a single local bbolt
// file. Replica.Open reads it eagerly via LoadAllMessages/LoadBookmarks/
// LoadFollowing rather than lazily, matching the teacher's
// repository-preloads-at-construction-time pattern.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) the bbolt file at path and
// ensures every collection bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open replica store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{messagesBucket, bookmarksBucket, followingBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize replica store buckets")
	}
	return &BoltStore{db: db}, nil
}

// DB exposes the underlying database so sibling stores (e.g. the
// delegation store) can share the same file instead of opening a second
// one.
func (s *BoltStore) DB() *bolt.DB {
	return s.db
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func messageKey(kind core.Kind, id string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", kind, id, timestamp))
}

func (s *BoltStore) SaveMessage(msg core.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).Put(messageKey(msg.Kind, msg.ID, msg.Timestamp), raw)
	})
}

func (s *BoltStore) LoadAllMessages() ([]core.Message, error) {
	var out []core.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(k, v []byte) error {
			var msg core.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return errors.Wrapf(err, "failed to decode message %s", k)
			}
			out = append(out, msg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) SaveBookmark(b core.Bookmark) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "failed to encode bookmark")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bookmarksBucket).Put([]byte(b.ID), raw)
	})
}

func (s *BoltStore) DeleteBookmark(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bookmarksBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) LoadBookmarks() ([]core.Bookmark, error) {
	var out []core.Bookmark
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bookmarksBucket).ForEach(func(k, v []byte) error {
			var b core.Bookmark
			if err := json.Unmarshal(v, &b); err != nil {
				return errors.Wrapf(err, "failed to decode bookmark %s", k)
			}
			out = append(out, b)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) SaveFollowing(f core.Following) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to encode following record")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(followingBucket).Put([]byte(f.ID), raw)
	})
}

func (s *BoltStore) DeleteFollowing(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(followingBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) LoadFollowing() ([]core.Following, error) {
	var out []core.Following
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(followingBucket).ForEach(func(k, v []byte) error {
			var f core.Following
			if err := json.Unmarshal(v, &f); err != nil {
				return errors.Wrapf(err, "failed to decode following record %s", k)
			}
			out = append(out, f)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
