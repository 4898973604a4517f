// Package store wraps an embedded ordered key-value environment (an LMDB
// analog) holding the three named sub-databases the pipeline shares across
// its transceive and diff-answers phases: meta, queries, and answers. It is
// implemented on go.etcd.io/bbolt, which gives the single-writer,
// multi-reader transaction model the pipeline needs: a thin, typed
// convenience layer around the underlying engine's transactions, not a
// reimplementation of them.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// Sub-database names, matching the external contract.
const (
	BucketMeta    = "meta"
	BucketQueries = "queries"
	BucketAnswers = "answers"
)

// FormatVersion is the compiled-in format tag. CheckVersion rejects a store
// whose meta.version differs.
const FormatVersion = "2018-05-21"

// Meta point keys.
const (
	metaKeyVersion   = "version"
	metaKeyStartTime = "start_time"
	metaKeyEndTime   = "end_time"
	metaKeyServers   = "servers"
	metaKeyNamePfx   = "name"
)

var (
	// ErrUnsupportedFormat is returned when meta.version does not match
	// FormatVersion.
	ErrUnsupportedFormat = errors.New("unsupported store format")
	// ErrMetaMissing is returned when a required meta key is absent,
	// e.g. end_time on a run that was interrupted before completion.
	ErrMetaMissing = errors.New("required meta key missing")
)

// Store is an opened environment. The zero value is not usable; construct
// with Open.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the environment file under dir and
// ensures all three sub-databases exist. The file is named data.db,
// matching bbolt's single-file-per-environment model.
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, "data.db")
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [...]string{BucketMeta, BucketQueries, BucketAnswers} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close releases the environment's file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// View runs fn in a read-only transaction. Many Views may run concurrently
// with each other and with the single in-flight Update.
func (s *Store) View(fn func(tx *bbolt.Tx) error) error {
	return s.db.View(fn)
}

// Update runs fn in the single read-write transaction bbolt serializes
// against all others.
func (s *Store) Update(fn func(tx *bbolt.Tx) error) error {
	return s.db.Update(fn)
}

// CheckVersion fails with ErrUnsupportedFormat if meta.version does not
// match FormatVersion, or is unset.
func (s *Store) CheckVersion() error {
	var version string
	err := s.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketMeta)).Get([]byte(metaKeyVersion))
		version = string(v)
		return nil
	})
	if err != nil {
		return err
	}
	if version != FormatVersion {
		return fmt.Errorf("%w: got %q, want %q", ErrUnsupportedFormat, version, FormatVersion)
	}
	return nil
}

// InitMeta stamps meta.version, meta.servers, meta.name{i} and
// meta.start_time for a fresh transceive run. It does not touch
// meta.end_time, which is written only once the run completes.
func (s *Store) InitMeta(servers []string, startTime uint32) error {
	return s.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketMeta))
		if err := b.Put([]byte(metaKeyVersion), []byte(FormatVersion)); err != nil {
			return err
		}
		if err := putUint32(b, metaKeyServers, uint32(len(servers))); err != nil {
			return err
		}
		for i, name := range servers {
			if err := b.Put([]byte(fmt.Sprintf("%s%d", metaKeyNamePfx, i)), []byte(name)); err != nil {
				return err
			}
		}
		return putUint32(b, metaKeyStartTime, startTime)
	})
}

// AnswerWriter begins the single long-lived write transaction the
// transceiver's writer task holds open for the whole run (per the
// concurrency model: "the answers write transaction is held by a single
// writer task; no concurrent writer exists"). Callers must call either
// Commit or Rollback exactly once.
type AnswerWriter struct {
	tx *bbolt.Tx
}

// BeginAnswers opens the long-lived answers-writing transaction.
func (s *Store) BeginAnswers() (*AnswerWriter, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("begin answers transaction: %w", err)
	}
	return &AnswerWriter{tx: tx}, nil
}

// Put stores one query's encoded response-list bytes under its QKey within
// the open transaction.
func (w *AnswerWriter) Put(key uint32, value []byte) error {
	return w.tx.Bucket([]byte(BucketAnswers)).Put(keyBytes(key), value)
}

// Commit durably persists every Put call made since BeginAnswers.
func (w *AnswerWriter) Commit() error {
	return w.tx.Commit()
}

// Rollback discards every Put call made since BeginAnswers, used when the
// run is aborted before completion.
func (w *AnswerWriter) Rollback() error {
	return w.tx.Rollback()
}

// PutEndTime writes meta.end_time in its own short transaction, marking the
// run as durably complete.
func (s *Store) PutEndTime(endTime uint32) error {
	return s.Update(func(tx *bbolt.Tx) error {
		return putUint32(tx.Bucket([]byte(BucketMeta)), metaKeyEndTime, endTime)
	})
}

// ServerNames reads the declared server list back from meta, in the order
// it was written.
func (s *Store) ServerNames() ([]string, error) {
	var names []string
	err := s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketMeta))
		count, ok := getUint32(b, metaKeyServers)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMetaMissing, metaKeyServers)
		}
		names = make([]string, count)
		for i := range names {
			v := b.Get([]byte(fmt.Sprintf("%s%d", metaKeyNamePfx, i)))
			if v == nil {
				return fmt.Errorf("%w: %s%d", ErrMetaMissing, metaKeyNamePfx, i)
			}
			names[i] = string(v)
		}
		return nil
	})
	return names, err
}

// StartEndTime reads meta.start_time/end_time. An unwritten end_time
// (process interrupted mid-run) surfaces as ErrMetaMissing, per the
// cancellation model: an incomplete run is a read error for the engine.
func (s *Store) StartEndTime() (start, end uint32, err error) {
	err = s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketMeta))
		var ok bool
		if start, ok = getUint32(b, metaKeyStartTime); !ok {
			return fmt.Errorf("%w: %s", ErrMetaMissing, metaKeyStartTime)
		}
		if end, ok = getUint32(b, metaKeyEndTime); !ok {
			return fmt.Errorf("%w: %s", ErrMetaMissing, metaKeyEndTime)
		}
		return nil
	})
	return start, end, err
}

// PutQuery stores one query's raw wire bytes under its QKey.
func (s *Store) PutQuery(key uint32, wireBytes []byte) error {
	return s.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketQueries)).Put(keyBytes(key), wireBytes)
	})
}

// ForEachQuery iterates the queries bucket in key order.
func (s *Store) ForEachQuery(fn func(key uint32, wire []byte) error) error {
	return s.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketQueries)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := fn(binary.LittleEndian.Uint32(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutAnswer stores one query's encoded response-list bytes under its QKey
// inside the caller's transaction tx, so many PutAnswer calls can share one
// Update. The transceive subcommand does not use it; it writes through
// AnswerWriter.
func (s *Store) PutAnswer(tx *bbolt.Tx, key uint32, value []byte) error {
	return tx.Bucket([]byte(BucketAnswers)).Put(keyBytes(key), value)
}

// ForEachAnswer iterates the answers bucket in key order.
func (s *Store) ForEachAnswer(fn func(key uint32, value []byte) error) error {
	return s.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketAnswers)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := fn(binary.LittleEndian.Uint32(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountQueries returns the number of entries in the queries bucket.
func (s *Store) CountQueries() (uint64, error) {
	return s.count(BucketQueries)
}

// CountAnswers returns the number of entries in the answers bucket.
func (s *Store) CountAnswers() (uint64, error) {
	return s.count(BucketAnswers)
}

func (s *Store) count(bucket string) (uint64, error) {
	var n uint64
	err := s.View(func(tx *bbolt.Tx) error {
		n = uint64(tx.Bucket([]byte(bucket)).Stats().KeyN)
		return nil
	})
	return n, err
}

func keyBytes(key uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, key)
	return b
}

func putUint32(b *bbolt.Bucket, key string, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return b.Put([]byte(key), buf)
}

func getUint32(b *bbolt.Bucket, key string) (uint32, bool) {
	v := b.Get([]byte(key))
	if len(v) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v), true
}
