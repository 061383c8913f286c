// Copyright 2026 TreasuryKit
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"encoding/binary"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

var (
	logSequenceKey = []byte("log_seq")
	logKeyPrefix   = []byte("log/")
)

// LogEntry is a single diagnostic record from the append-only log store.
type LogEntry struct {
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

func logKey(seq uint64) []byte {
	key := make([]byte, len(logKeyPrefix)+8)
	copy(key, logKeyPrefix)
	binary.BigEndian.PutUint64(key[len(logKeyPrefix):], seq)
	return key
}

// AddLog appends a diagnostic record to the log store under the next
// sequence number
func (d *Database) AddLog(text string) error {
	seq, err := d.logSeq.Next()
	if err != nil {
		return fmt.Errorf("next log sequence: %w", err)
	}
	value := make([]byte, 8, 8+len(text))
	binary.BigEndian.PutUint64(value, uint64(time.Now().UnixNano()))
	value = append(value, []byte(text)...)
	err = d.logDb.Update(func(txn *badger.Txn) error {
		return txn.Set(logKey(seq), value)
	})
	if err != nil {
		return fmt.Errorf("append log record: %w", err)
	}
	return nil
}

// Logs returns up to limit records from the log store, newest first. A
// limit of zero returns all records
func (d *Database) Logs(limit int) ([]LogEntry, error) {
	var entries []LogEntry
	err := d.logDb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = logKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		// Reverse iteration needs a seek key past the last possible entry
		seekKey := append([]byte{}, logKeyPrefix...)
		seekKey = append(
			seekKey,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		)
		for it.Seek(seekKey); it.ValidForPrefix(logKeyPrefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			item := it.Item()
			key := item.Key()
			seq := binary.BigEndian.Uint64(key[len(logKeyPrefix):])
			err := item.Value(func(val []byte) error {
				if len(val) < 8 {
					return fmt.Errorf(
						"malformed log record at seq %d",
						seq,
					)
				}
				entries = append(
					entries,
					LogEntry{
						Seq:       seq,
						Timestamp: int64(binary.BigEndian.Uint64(val[0:8])),
						Text:      string(val[8:]),
					},
				)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read log records: %w", err)
	}
	return entries, nil
}
