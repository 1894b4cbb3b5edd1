/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package flow defines the API that protocol code (flows) is written against.
//
// A flow is a unit of work executed on one node. It may open sessions with
// flows on other nodes: the initiating side calls Context.InitiateFlow with a
// Kind, and the counterparty starts the responder it registered for that Kind.
// Payloads travel as protocol buffer messages and are serialized at the session
// boundary, so the two sides never share memory.
package flow

import (
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/hyperledger-labs/bnsim/pkg/identity"
	"github.com/hyperledger-labs/bnsim/pkg/logging"
	"github.com/hyperledger-labs/bnsim/pkg/types"
)

// Kind names the kind of request a responder answers.
type Kind string

// Flow is a unit of work executed on a node.
// The value returned by Call is the flow's outcome; a non-nil error fails the flow.
type Flow interface {
	Call(ctx Context) (interface{}, error)
}

// Func adapts an ordinary function to the Flow interface.
type Func func(ctx Context) (interface{}, error)

// Call implements Flow.
func (f Func) Call(ctx Context) (interface{}, error) {
	return f(ctx)
}

// Context is the view a running flow has of its node and the network.
type Context interface {
	// RunID identifies this execution of the flow.
	RunID() types.FlowRunID

	// OurIdentity is the legal identity of the node the flow runs on.
	OurIdentity() identity.Party

	// Notary is the identity of the network's consensus-service node.
	Notary() identity.Party

	// WellKnownParty looks up a node of the network by its legal name.
	WellKnownParty(name identity.Name) (identity.Party, bool)

	// InitiateFlow opens a session with counterparty, asking it to start
	// the responder it registered for kind.
	InitiateFlow(kind Kind, counterparty identity.Party) (Session, error)

	// SubFlow runs sub inline, within the same execution.
	SubFlow(sub Flow) (interface{}, error)

	// Sleep suspends the flow for d of virtual time.
	Sleep(d time.Duration)

	// Now returns the current virtual time of the network.
	Now() time.Time

	// Logger returns a logger annotated with the node's name and the run id.
	Logger() logging.Logger
}

// Session is one end of a conversation between two flows.
type Session interface {
	// Counterparty is the party on the other end.
	Counterparty() identity.Party

	// Send queues msg for delivery to the counterparty. It does not suspend the flow.
	Send(msg proto.Message) error

	// Receive suspends the flow until the counterparty's next message arrives.
	// Returns ErrSessionEnded, a *CounterpartyError or a *SessionRejectedError
	// when no further messages can arrive.
	Receive() (proto.Message, error)

	// SendAndReceive is Send followed by Receive.
	SendAndReceive(msg proto.Message) (proto.Message, error)
}

// ResponderFactory creates the flow answering a newly opened session.
type ResponderFactory func(session Session) Flow

// Responder registers a ResponderFactory for a kind of request.
type Responder struct {
	Kind Kind
	New  ResponderFactory
}
