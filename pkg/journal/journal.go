/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package journal keeps a per-node write-ahead journal of the events a simulated node processed.
// Journals outlive the network and are meant for post-mortem inspection of failed tests.
package journal

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/wal"

	"github.com/hyperledger-labs/bnsim/pkg/eventlog"
)

type Journal struct {
	mutex sync.Mutex
	log   *wal.Log

	// Index of the next entry to append at the level of the underlying wal.
	idx uint64
}

// Open opens (or creates) the journal stored in the directory path.
func Open(path string) (*Journal, error) {

	// Create underlying log
	log, err := wal.Open(path, &wal.Options{
		NoSync: true,
		NoCopy: true,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "could not open journal")
	}

	// The LastIndex obtained from the tidwall implementation happens to be the next index
	// (in terms of our journal abstraction), as the underlying implementation starts counting at 1 and we start at 0.
	idx, err := log.LastIndex()
	if err != nil {
		return nil, errors.WithMessage(err, "failed obtaining last journal index")
	}

	return &Journal{
		log: log,
		idx: idx,
	}, nil
}

func (j *Journal) IsEmpty() (bool, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	lastIndex, err := j.log.LastIndex()
	if err != nil {
		return false, errors.WithMessage(err, "could not read last index")
	}

	return lastIndex == 0, nil
}

// Append writes entry at the next index.
func (j *Journal) Append(entry *eventlog.Entry) error {
	data, err := entry.Marshal()
	if err != nil {
		return err
	}

	j.mutex.Lock()
	defer j.mutex.Unlock()

	if err := j.log.Write(j.idx+1, data); err != nil { // The log implementation indexes starting with 1.
		return errors.WithMessagef(err, "could not write journal index %d", j.idx)
	}
	j.idx++
	return nil
}

// LoadAll calls forEach for every retained entry, in order.
func (j *Journal) LoadAll(forEach func(index uint64, entry *eventlog.Entry)) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	firstIndex, err := j.log.FirstIndex()
	if err != nil {
		return errors.WithMessage(err, "could not read first index")
	}

	if firstIndex == 0 {
		// Journal is empty
		return nil
	}

	lastIndex, err := j.log.LastIndex()
	if err != nil {
		return errors.WithMessage(err, "could not read last index")
	}

	for i := firstIndex; i <= lastIndex; i++ {
		data, err := j.log.Read(i)
		if err != nil {
			return errors.WithMessagef(err, "could not read index %d", i)
		}

		entry, err := eventlog.ReadEntryProto(data)
		if err != nil {
			return errors.WithMessage(err, "error decoding entry, is the journal corrupt?")
		}

		forEach(i-1, entry)
	}

	return nil
}

// Truncate discards all entries before index.
func (j *Journal) Truncate(index uint64) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	return j.log.TruncateFront(index + 1)
}

func (j *Journal) Sync() error {
	return j.log.Sync()
}

func (j *Journal) Close() error {
	return j.log.Close()
}
