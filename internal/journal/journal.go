package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	EventsBucket   = []byte("events")   // Operation history, sequence-keyed
	AttemptsBucket = []byte("attempts") // Failed authentication counts per profile
	MetaBucket     = []byte("meta")     // Version, creation timestamp
)

// Meta keys
var (
	MetaVersion = []byte("version")
	MetaCreated = []byte("created")
)

// Event levels
const (
	LevelInfo     = "info"
	LevelError    = "error"
	LevelSecurity = "security"
)

// MaxEvents caps the retained history. Writing past the cap prunes the
// oldest entries in the same transaction.
const MaxEvents = 1000

// Event is one entry in the operation history.
type Event struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Event     string    `json:"event"`
	ProfileID string    `json:"profile_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Journal provides the durable operation history and auth attempt counts,
// backed by a BBolt database.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{EventsBucket, AttemptsBucket, MetaBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		meta := tx.Bucket(MetaBucket)
		if meta.Get(MetaVersion) == nil {
			if err := meta.Put(MetaVersion, []byte("1")); err != nil {
				return err
			}
			created, _ := time.Now().MarshalBinary()
			if err := meta.Put(MetaCreated, created); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an info-level event.
func (j *Journal) Record(event, profileID, detail string) error {
	return j.record(LevelInfo, event, profileID, detail)
}

// RecordError appends an error-level event.
func (j *Journal) RecordError(event, profileID, detail string) error {
	return j.record(LevelError, event, profileID, detail)
}

// RecordSecurity appends a security-level event.
func (j *Journal) RecordSecurity(event, profileID, detail string) error {
	return j.record(LevelSecurity, event, profileID, detail)
}

func (j *Journal) record(level, event, profileID, detail string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(EventsBucket)

		seq, err := events.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		e := Event{
			Seq:       seq,
			Time:      time.Now(),
			Level:     level,
			Event:     event,
			ProfileID: profileID,
			Detail:    detail,
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := events.Put(key, data); err != nil {
			return err
		}

		// Sequences are monotonic, so retention is a key cutoff: only
		// seq-MaxEvents+1 through seq survive.
		if seq > MaxEvents {
			cutoff := make([]byte, 8)
			binary.BigEndian.PutUint64(cutoff, seq-MaxEvents)
			c := events.Cursor()
			for k, _ := c.First(); k != nil && bytes.Compare(k, cutoff) <= 0; k, _ = c.First() {
				if err := events.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Recent returns up to n events, newest first.
func (j *Journal) Recent(n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}

	var events []Event
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(EventsBucket).Cursor()
		for k, v := c.Last(); k != nil && len(events) < n; k, v = c.Prev() {
			var e Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

// RecordAuthFailure increments a profile's failed authentication count.
func (j *Journal) RecordAuthFailure(profileID string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		attempts := tx.Bucket(AttemptsBucket)

		count := uint64(0)
		if data := attempts.Get([]byte(profileID)); len(data) == 8 {
			count = binary.BigEndian.Uint64(data)
		}
		count++

		data := make([]byte, 8)
		binary.BigEndian.PutUint64(data, count)
		return attempts.Put([]byte(profileID), data)
	})
}

// AuthFailures returns a profile's failed authentication count.
func (j *Journal) AuthFailures(profileID string) (uint64, error) {
	var count uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(AttemptsBucket).Get([]byte(profileID)); len(data) == 8 {
			count = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	return count, err
}

// ClearAuthFailures resets a profile's failed authentication count after
// a successful verification.
func (j *Journal) ClearAuthFailures(profileID string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(AttemptsBucket).Delete([]byte(profileID))
	})
}

// Compact creates a compacted copy of the database, removing unused
// space, and atomically replaces the original.
func (j *Journal) Compact() error {
	srcPath := j.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = j.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				dstBucket.SetSequence(srcBucket.Sequence())
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := j.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	j.db, err = bolt.Open(srcPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen journal: %w", err)
	}

	log.Infof("journal compacted")
	return nil
}
