// Package boltdb provides a persistent sequence.Store that keeps counters in a file.
package boltdb

import (
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"

	"code.btmesh.org/golang/internal/utils"
	"code.btmesh.org/golang/pkg/sequence"
)

const connectTimeout = 5 * time.Second

type seqStore struct {
	dbpath string
}

// New returns a sequence.Store implementation that persists counters in a
// single file boltdb database. It errors if the database schema can not be
// created.
func New(dbpath string) (sequence.Store, error) {
	store := seqStore{dbpath: dbpath}

	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("counterTbl"))
		return wrapError(err, "failed counterTbl bucket creation")
	})
	if nil != err {
		return nil, wrapError(err, "failed db initialization")
	}

	return store, nil
}

// GetUint returns the counter stored under key.
// The flag is false if the key is absent or the database is not reachable.
func (self seqStore) GetUint(key string) (uint64, bool) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return 0, false
	}
	defer db.Close()

	var value uint64
	var found bool
	err = db.View(func(tx *bolt.Tx) error {
		counterTbl := tx.Bucket([]byte("counterTbl"))
		if nil == counterTbl {
			return newError("missing counterTbl bucket")
		}

		raw := counterTbl.Get([]byte(key))
		if 8 == len(raw) {
			value = binary.BigEndian.Uint64(raw)
			found = true
		}

		return nil
	})
	if nil != err {
		return 0, false
	}

	return value, found
}

// SetUint stores value under key.
func (self seqStore) SetUint(key string, value uint64) error {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		counterTbl := tx.Bucket([]byte("counterTbl"))
		if nil == counterTbl {
			return newError("missing counterTbl bucket")
		}

		raw := make([]byte, 8)
		binary.BigEndian.PutUint64(raw, value)

		return counterTbl.Put([]byte(key), raw)
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

// Remove drops the key from the store.
func (self seqStore) Remove(key string) error {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		counterTbl := tx.Bucket([]byte("counterTbl"))
		if nil == counterTbl {
			return newError("missing counterTbl bucket")
		}

		return counterTbl.Delete([]byte(key))
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error   = errorFlag("sequence/boltdb: error")
	noError = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	} else {
		return Error
	}
}

func newError(msg string, args ...any) error {
	return utils.NewError(1, Error, msg, args...)
}

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}
