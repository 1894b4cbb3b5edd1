/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/bnsim/pkg/crypto"
	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/identity"
	"github.com/hyperledger-labs/bnsim/pkg/journal"
	"github.com/hyperledger-labs/bnsim/pkg/logging"
	"github.com/hyperledger-labs/bnsim/pkg/notary"
	"github.com/hyperledger-labs/bnsim/pkg/types"
)

// NodeParameters describe a node to create.
type NodeParameters struct {
	// LegalName is the node's main identity.
	LegalName identity.Name

	// AdditionalLegalNames are further identities the node holds.
	AdditionalLegalNames []identity.Name

	// Responders are fixed for the lifetime of the node.
	Responders []flow.Responder
}

// Node is a simulated ledger node.
type Node struct {
	network *Network
	id      types.NodeID

	party      identity.Party
	identities []identity.Party
	signers    []*crypto.Signer

	responders map[flow.Kind]flow.Responder
	sessions   map[types.SessionID]*session

	// fibers are the flows currently running on the node, in start order.
	fibers []*fiber

	journal     *journal.Journal
	notaryStore *notary.Store
	logger      logging.Logger
	stopped     bool
}

func (n *Node) ID() types.NodeID {
	return n.id
}

// Identities returns every identity of the node, main identity first.
func (n *Node) Identities() []identity.Party {
	result := make([]identity.Party, len(n.identities))
	copy(result, n.identities)
	return result
}

// Identity returns the node's identity, failing if the node does not have exactly one.
func (n *Node) Identity() (identity.Party, error) {
	if len(n.identities) != 1 {
		return identity.Party{}, errors.Errorf("node %d has %d identities, expected exactly one", n.id, len(n.identities))
	}
	return n.identities[0], nil
}

// LegalName is the name of the node's main identity.
func (n *Node) LegalName() identity.Name {
	return n.party.Name
}

// Responders returns the registered responder kinds, sorted.
func (n *Node) Responders() []flow.Kind {
	kinds := make([]flow.Kind, 0, len(n.responders))
	for kind := range n.responders {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i] < kinds[j]
	})
	return kinds
}

func (n *Node) HasResponder(kind flow.Kind) bool {
	_, ok := n.responders[kind]
	return ok
}

// Bundles returns the names of the code bundles loaded on the node.
func (n *Node) Bundles() []string {
	return n.network.bundles.Names()
}

func (n *Node) IsNotary() bool {
	return n.notaryStore != nil
}

func (n *Node) Stopped() bool {
	return n.stopped
}

func (n *Node) Logger() logging.Logger {
	return n.logger
}

// ActiveFlows is the number of flows started but not completed on the node.
func (n *Node) ActiveFlows() int {
	return len(n.fibers)
}

func (n *Node) hasIdentity(party identity.Party) bool {
	for _, id := range n.identities {
		if id.Equal(party) {
			return true
		}
	}
	return false
}

func (n *Node) removeFiber(f *fiber) {
	for i, running := range n.fibers {
		if running == f {
			n.fibers = append(n.fibers[:i], n.fibers[i+1:]...)
			return
		}
	}
}
