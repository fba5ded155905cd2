// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

// Package results keeps a history of suite runs in a bbolt database.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/ZaparooProject/go-nci"
)

// DefaultPath is where the binaries keep their run history.
const DefaultPath = "nci-results.db"

var bucketRuns = []byte("runs")

// Store errors
var (
	ErrNotFound  = errors.New("run not found")
	ErrInvalidID = errors.New("invalid run id")
)

// Store holds reports keyed by run ID.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func parseID(id string) ([]byte, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidID, id, err)
	}
	return []byte(u.String()), nil
}

// Save stores rep. A report without an ID is given one.
func (s *Store) Save(rep *nci.Report) error {
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	key, err := parseID(rep.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rep.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRuns)
		}
		return b.Put(key, data)
	})
}

// Get returns the report stored under id.
func (s *Store) Get(id string) (*nci.Report, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var rep nci.Report
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRuns)
		}
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &rep)
	})
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// List returns up to limit reports, newest first. A limit of zero or less
// returns them all.
func (s *Store) List(limit int) ([]*nci.Report, error) {
	var reps []*nci.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		reps = make([]*nci.Report, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var rep nci.Report
			if err := json.Unmarshal(v, &rep); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			reps = append(reps, &rep)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reps, func(i, j int) bool {
		return reps[i].Started.After(reps[j].Started)
	})
	if limit > 0 && len(reps) > limit {
		reps = reps[:limit]
	}
	return reps, nil
}

// Delete removes a run. Deleting an unknown run is not an error.
func (s *Store) Delete(id string) error {
	key, err := parseID(id)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRuns)
		}
		return b.Delete(key)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
