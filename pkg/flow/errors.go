/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package flow

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/bnsim/pkg/identity"
)

var (
	// ErrSessionEnded is returned by Receive once the counterparty flow has
	// completed and every message it sent has been consumed.
	ErrSessionEnded = errors.New("counterparty flow has ended")

	// ErrSelfSession is returned when a flow tries to open a session with its own node.
	ErrSelfSession = errors.New("cannot initiate a session with our own identity")

	// ErrUnknownParty is returned when opening a session with a party that is not on the network.
	ErrUnknownParty = errors.New("party is not on the network")
)

// CounterpartyError reports that the flow on the other end of a session failed.
type CounterpartyError struct {
	Party   identity.Party
	Message string
}

func (e *CounterpartyError) Error() string {
	return fmt.Sprintf("counterparty %s failed: %s", e.Party, e.Message)
}

// SessionRejectedError reports that the counterparty has no responder for the requested kind.
type SessionRejectedError struct {
	Kind   Kind
	Party  identity.Party
	Reason string
}

func (e *SessionRejectedError) Error() string {
	return fmt.Sprintf("session of kind %s rejected by %s: %s", e.Kind, e.Party, e.Reason)
}
