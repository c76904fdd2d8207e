package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/lojasmm/papo/internal/chat"
)

var usersBucket = []byte("users")

// Store persists each user's history as one record. Save replaces the whole record.
type Store interface {
	LoadUser(id string) (*chat.User, error)
	SaveUser(u *chat.User) error
	Close() error
}

type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(usersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating users bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// LoadUser returns the stored user, or a user with empty history if id is unknown.
func (s *BoltStore) LoadUser(id string) (*chat.User, error) {
	u := chat.NewUser(id)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(usersBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &u.History)
	})
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", id, err)
	}
	if u.History == nil {
		u.History = chat.History{}
	}
	return u, nil
}

func (s *BoltStore) SaveUser(u *chat.User) error {
	history := u.History
	if history == nil {
		history = chat.History{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history for %s: %w", u.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(usersBucket).Put([]byte(u.ID), data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
