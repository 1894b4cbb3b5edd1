/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/identity"
	"github.com/hyperledger-labs/bnsim/pkg/types"
)

// session is one end of a flow session, owned by the fiber that opened or answered it.
type session struct {
	id     types.SessionID
	peerID types.SessionID
	kind   flow.Kind

	node         *Node
	peer         *Node
	counterparty identity.Party
	owner        *fiber

	inbox []*anypb.Any

	// endErr is returned by Receive once the inbox is drained.
	// It is set when the counterparty ended or rejected the session.
	endErr error

	// closed is set once the owning flow finished.
	closed bool
}

func (s *session) Counterparty() identity.Party {
	return s.counterparty
}

func (s *session) Send(msg proto.Message) error {
	if s.closed {
		return errors.Errorf("session %d with %s is closed", s.id, s.counterparty)
	}
	if s.endErr != nil {
		return s.endErr
	}

	payload, err := anypb.New(msg)
	if err != nil {
		return errors.WithMessage(err, "could not serialize message")
	}

	s.node.network.sendData(s, payload)
	return nil
}

func (s *session) Receive() (proto.Message, error) {
	for {
		if len(s.inbox) > 0 {
			payload := s.inbox[0]
			s.inbox = s.inbox[1:]
			msg, err := payload.UnmarshalNew()
			if err != nil {
				return nil, errors.WithMessagef(err, "could not deserialize message of type %s", payload.TypeUrl)
			}
			return msg, nil
		}

		if s.endErr != nil {
			return nil, s.endErr
		}

		if s.closed {
			return nil, errors.Errorf("session %d with %s is closed", s.id, s.counterparty)
		}

		s.owner.waitingOn = s
		s.owner.suspend()
	}
}

func (s *session) SendAndReceive(msg proto.Message) (proto.Message, error) {
	if err := s.Send(msg); err != nil {
		return nil, err
	}
	return s.Receive()
}
