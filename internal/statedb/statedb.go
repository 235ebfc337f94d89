// Package statedb persists the expression state store between CLI runs in a
// bbolt file.
package statedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/dyneval/internal/expr"
)

const bucketState = "state"

// ErrNoSuchKey is returned by Get when the key is absent.
var ErrNoSuchKey = errors.New("no such state key")

// DB is a persistent snapshot of state values.
type DB struct {
	db *bolt.DB
}

// storedValue is the on-disk encoding: exactly one field is set.
type storedValue struct {
	Float  *float32 `json:"float,omitempty"`
	String *string  `json:"string,omitempty"`
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketState))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize state bucket: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Put stores v under key.
func (d *DB) Put(key string, v expr.Value) error {
	data, err := marshalValue(v)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Put([]byte(key), data)
	})
}

// Get returns the value under key, or ErrNoSuchKey.
func (d *DB) Get(key string) (expr.Value, error) {
	var v expr.Value
	err := d.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketState)).Get([]byte(key))
		if data == nil {
			return ErrNoSuchKey
		}
		var err error
		v, err = unmarshalValue(data)
		return err
	})
	return v, err
}

// Delete removes key. Deleting an absent key is not an error.
func (d *DB) Delete(key string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).Delete([]byte(key))
	})
}

// All returns every stored value.
func (d *DB) All() (map[string]expr.Value, error) {
	out := make(map[string]expr.Value)
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketState)).ForEach(func(k, data []byte) error {
			v, err := unmarshalValue(data)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			out[string(k)] = v
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Load copies every stored value into s in one update.
func (d *DB) Load(s *expr.StateStore) error {
	values, err := d.All()
	if err != nil {
		return err
	}
	s.SetAll(values)
	return nil
}

func marshalValue(v expr.Value) ([]byte, error) {
	var sv storedValue
	switch v := v.(type) {
	case expr.Float:
		f := float32(v)
		sv.Float = &f
	case expr.String:
		s := string(v)
		sv.String = &s
	default:
		return nil, fmt.Errorf("unsupported state value %T", v)
	}
	return json.Marshal(sv)
}

func unmarshalValue(data []byte) (expr.Value, error) {
	var sv storedValue
	if err := json.Unmarshal(data, &sv); err != nil {
		return nil, fmt.Errorf("decode state value: %w", err)
	}
	switch {
	case sv.Float != nil && sv.String == nil:
		return expr.Float(*sv.Float), nil
	case sv.String != nil && sv.Float == nil:
		return expr.String(*sv.String), nil
	}
	return nil, fmt.Errorf("decode state value: want exactly one of float, string in %s", data)
}
