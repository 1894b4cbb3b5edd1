/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package notary implements the consensus service of a simulated network.
//
// The notary guarantees that no state is consumed twice. Its uniqueness
// provider is a badger database keyed by state reference.
package notary

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/bnsim/pkg/logging"
)

// StateRef points at the output Index of the transaction TxID.
type StateRef struct {
	TxID  string
	Index uint32
}

func (r StateRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.Index)
}

// ParseStateRef parses the txid:index form produced by StateRef.String.
func ParseStateRef(s string) (StateRef, error) {
	sep := strings.LastIndexByte(s, ':')
	if sep <= 0 {
		return StateRef{}, errors.Errorf("malformed state ref %q", s)
	}
	index, err := strconv.ParseUint(s[sep+1:], 10, 32)
	if err != nil {
		return StateRef{}, errors.WithMessagef(err, "malformed state ref %q", s)
	}
	return StateRef{TxID: s[:sep], Index: uint32(index)}, nil
}

// ErrConflict matches every *ConflictError.
var ErrConflict = errors.New("input states already consumed")

// ConflictError lists the inputs of a transaction that were already consumed,
// with the id of the transaction that consumed each of them.
type ConflictError struct {
	TxID      string
	Conflicts map[StateRef]string
}

func (e *ConflictError) Error() string {
	refs := make([]string, 0, len(e.Conflicts))
	for ref, consumer := range e.Conflicts {
		refs = append(refs, fmt.Sprintf("%s by %s", ref, consumer))
	}
	sort.Strings(refs)
	return fmt.Sprintf("transaction %s: %s: %s", e.TxID, ErrConflict, strings.Join(refs, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func consumedKey(ref StateRef) []byte {
	return []byte(fmt.Sprintf("consumed-%s", ref))
}

type Store struct {
	db *badger.DB
}

// Open opens the uniqueness store in dirPath, or in memory if dirPath is empty.
// Badger's own log output is forwarded to logger.
func Open(dirPath string, logger logging.Logger) (*Store, error) {
	var badgerOpts badger.Options
	if dirPath == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(dirPath).WithSyncWrites(false).WithTruncate(true)
	}
	if logger == nil {
		logger = logging.NilLogger
	}
	badgerOpts = badgerOpts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.WithMessage(err, "could not open backing db")
	}

	return &Store{
		db: db,
	}, nil
}

// Commit marks inputs as consumed by txID, all or nothing.
// Committing the same transaction again succeeds.
// If any input was consumed by a different transaction, nothing is written
// and a *ConflictError is returned.
func (s *Store) Commit(txID string, inputs []StateRef) error {
	if txID == "" {
		return errors.New("empty transaction id")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		conflicts := map[StateRef]string{}
		for _, ref := range inputs {
			item, err := txn.Get(consumedKey(ref))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}

			consumer, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(consumer) != txID {
				conflicts[ref] = string(consumer)
			}
		}

		if len(conflicts) > 0 {
			return &ConflictError{
				TxID:      txID,
				Conflicts: conflicts,
			}
		}

		for _, ref := range inputs {
			if err := txn.Set(consumedKey(ref), []byte(txID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConsumedBy returns the id of the transaction that consumed ref, or "" if it is unspent.
func (s *Store) ConsumedBy(ref StateRef) (string, error) {
	var valCopy []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(consumedKey(ref))
		if err != nil {
			return err
		}

		valCopy, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return "", nil
	}

	return string(valCopy), err
}

func (s *Store) Sync() error {
	return s.db.Sync()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's printf-style logging into a Logger.
type badgerLogger struct {
	logger logging.Logger
}

func (bl *badgerLogger) log(level logging.LogLevel, format string, args ...interface{}) {
	bl.logger.Log(level, "badger: "+strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (bl *badgerLogger) Errorf(format string, args ...interface{}) {
	bl.log(logging.LevelError, format, args...)
}

func (bl *badgerLogger) Warningf(format string, args ...interface{}) {
	bl.log(logging.LevelWarn, format, args...)
}

func (bl *badgerLogger) Infof(format string, args ...interface{}) {
	bl.log(logging.LevelDebug, format, args...)
}

func (bl *badgerLogger) Debugf(format string, args ...interface{}) {
	bl.log(logging.LevelDebug, format, args...)
}
