// Package audit records every operator write to a process variable in a
// local bolt database: who wrote what, from which element of which
// display, and when. The log is append-only within a session and survives
// restarts.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketWrites = "writes"

var initDB = []func(tx *bolt.Tx) error{
	func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketWrites))
		return err
	},
}

// Record is one audited write.
type Record struct {
	// Seq is the record's sequence number, assigned on append.
	Seq uint64 `json:"-"`
	// PV is the variable name as written by the operator's element.
	PV string `json:"pv"`
	// Value is the written value rendered as text.
	Value string `json:"value"`
	// Element names the runtime element kind that issued the write.
	Element string `json:"element"`
	// Display is the display file the element belongs to.
	Display string `json:"display,omitempty"`
	// User is the operating system user name.
	User string `json:"user,omitempty"`
	// Time is when the write was issued.
	Time time.Time `json:"time"`
}

// Log is a bolt-backed write audit log.
type Log struct {
	db   *bolt.DB
	user string
}

// Open opens or creates the audit database at path.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, f := range initDB {
			if err := f(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init %s: %w", path, err)
	}
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return &Log{db: db, user: user}, nil
}

// Close closes the database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// Append records one write. A nil log drops the record, so callers need no
// audit-enabled branch.
func (l *Log) Append(rec Record) error {
	if l == nil {
		return nil
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if rec.User == "" {
		rec.User = l.user
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWrites))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), data)
	})
}

// Iterate calls f for every record in the half-open sequence range
// [from, upto). An upto of zero means the end of the log.
func (l *Log) Iterate(from, upto uint64, f func(Record)) error {
	if l == nil {
		return nil
	}
	return l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWrites))
		c := b.Cursor()
		for k, v := c.Seek(marshalSeq(from)); k != nil; k, v = c.Next() {
			seq := unmarshalSeq(k)
			if upto != 0 && seq >= upto {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			rec.Seq = seq
			f(rec)
		}
		return nil
	})
}

// Recent returns the last n records, oldest first.
func (l *Log) Recent(n int) ([]Record, error) {
	if l == nil || n <= 0 {
		return nil, nil
	}
	var out []Record
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWrites))
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			rec.Seq = unmarshalSeq(k)
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// NextSeq returns the sequence number the next appended record will get.
func (l *Log) NextSeq() (uint64, error) {
	if l == nil {
		return 0, nil
	}
	var seq uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		seq = tx.Bucket([]byte(bucketWrites)).Sequence() + 1
		return nil
	})
	return seq, err
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}
