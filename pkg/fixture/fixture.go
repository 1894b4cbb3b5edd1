/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package fixture sets up simulated business networks for tests.
//
// A Fixture is a network with one notary, a number of business network
// operator (BNO) nodes and a number of participant nodes, each role with its
// own responders. Tests run flows on its nodes with RunFlowAndReturn, which
// drives the network until it is quiescent, and tear it down with Stop.
// A Fixture is meant for a single test and must not be shared between goroutines.
package fixture

import (
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"

	"github.com/hyperledger-labs/bnsim/pkg/bundle"
	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/identity"
	"github.com/hyperledger-labs/bnsim/pkg/logging"
	"github.com/hyperledger-labs/bnsim/pkg/simnet"
)

// ErrFlowNotComplete is returned by RunFlowAndReturn when the network settled
// while the flow was still waiting for a message.
var ErrFlowNotComplete = simnet.ErrFlowNotComplete

// BNOName returns the legal name of the i-th BNO, counting from 0.
func BNOName(i int) identity.Name {
	return identity.MustParseName(fmt.Sprintf("O=BNO_%d,L=New York,C=US", i))
}

// ParticipantName returns the legal name of the i-th participant, counting from 1.
func ParticipantName(i int) identity.Name {
	return identity.MustParseName(fmt.Sprintf("O=Participant %d,L=London,C=GB", i))
}

// Fixture is a running simulated business network.
type Fixture struct {
	Network          *simnet.Network
	Notary           *simnet.Node
	BNONodes         []*simnet.Node
	ParticipantNodes []*simnet.Node

	logger  logging.Logger
	stopped bool
}

// New creates the network described by config and drains it.
// If any step fails, the nodes created so far are stopped and the error is returned.
func New(config Config) (*Fixture, error) {
	if config.NotaryName == "" {
		config.NotaryName = DefaultNotaryName
	}
	if config.DrainLimit == 0 {
		config.DrainLimit = DefaultDrainLimit
	}
	if err := config.validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid fixture config")
	}

	logger, err := config.logger()
	if err != nil {
		return nil, errors.WithMessage(err, "invalid fixture config")
	}

	notaryName, err := identity.ParseName(config.NotaryName)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid notary name")
	}

	network, err := simnet.New(simnet.Config{
		Seed:       config.Seed,
		DrainLimit: config.DrainLimit,
		Directory:  config.Directory,
		EventLog:   config.EventLog,
		Logger:     logger,
		Registerer: config.Registerer,
		Mangler:    config.Mangler,
		Bundles:    config.Bundles,
		Registry:   config.Registry,
	})
	if err != nil {
		return nil, err
	}

	f := &Fixture{
		Network: network,
		logger:  logger,
	}
	if err := f.populate(config, notaryName); err != nil {
		if stopErr := network.StopNodes(); stopErr != nil {
			logger.Log(logging.LevelWarn, "could not stop partially created network", "err", stopErr)
		}
		return nil, err
	}

	return f, nil
}

func (f *Fixture) populate(config Config, notaryName identity.Name) error {
	bnoResponders, err := responders(f.Network.Bundles(), config.BNOResponders, config.BNOResponderKinds)
	if err != nil {
		return errors.WithMessage(err, "invalid BNO responders")
	}
	participantResponders, err := responders(f.Network.Bundles(), config.ParticipantResponders, config.ParticipantResponderKinds)
	if err != nil {
		return errors.WithMessage(err, "invalid participant responders")
	}

	f.Notary, err = f.Network.CreateNotary(simnet.NodeParameters{LegalName: notaryName})
	if err != nil {
		return errors.WithMessage(err, "could not create notary")
	}

	for i := 0; i < config.NumberOfBusinessNetworks; i++ {
		node, err := f.Network.CreateNode(simnet.NodeParameters{
			LegalName:  BNOName(i),
			Responders: bnoResponders,
		})
		if err != nil {
			return errors.WithMessagef(err, "could not create BNO %d", i)
		}
		f.BNONodes = append(f.BNONodes, node)
	}

	for i := 1; i <= config.NumberOfParticipants; i++ {
		node, err := f.Network.CreateNode(simnet.NodeParameters{
			LegalName:  ParticipantName(i),
			Responders: participantResponders,
		})
		if err != nil {
			return errors.WithMessagef(err, "could not create participant %d", i)
		}
		f.ParticipantNodes = append(f.ParticipantNodes, node)
	}

	if _, err := f.Network.RunNetwork(); err != nil {
		return errors.WithMessage(err, "network did not settle after setup")
	}

	f.logger.Log(logging.LevelDebug, "fixture created", "bnos", len(f.BNONodes), "participants", len(f.ParticipantNodes))
	return nil
}

// responders merges explicit registrations with the ones named by kind in the loaded bundles.
func responders(bundles bundle.Set, explicit []flow.Responder, kinds []flow.Kind) ([]flow.Responder, error) {
	result := make([]flow.Responder, 0, len(explicit)+len(kinds))
	result = append(result, explicit...)
	for _, kind := range kinds {
		responder, ok := bundles.Responder(kind)
		if !ok {
			return nil, errors.Errorf("no responder for kind %s in bundles %v", kind, bundles.Names())
		}
		result = append(result, responder)
	}
	return result, nil
}

// Nodes returns the BNO nodes followed by the participant nodes.
func (f *Fixture) Nodes() []*simnet.Node {
	nodes := make([]*simnet.Node, 0, len(f.BNONodes)+len(f.ParticipantNodes))
	nodes = append(nodes, f.BNONodes...)
	return append(nodes, f.ParticipantNodes...)
}

// Stop stops every node of the network. Stopping a stopped fixture does nothing.
func (f *Fixture) Stop() error {
	if f.stopped {
		return nil
	}
	f.stopped = true
	return f.Network.StopNodes()
}

// RunFlowAndReturn starts fl on node, drains the network and returns the flow's outcome.
// An error returned by the flow is passed on unchanged.
func (f *Fixture) RunFlowAndReturn(node *simnet.Node, fl flow.Flow) (interface{}, error) {
	handle, err := f.Network.StartFlow(node, fl)
	if err != nil {
		return nil, err
	}
	return f.await(handle)
}

// RunFlowByName is RunFlowAndReturn for the bundle flow called name.
func (f *Fixture) RunFlowByName(node *simnet.Node, name string, args proto.Message) (interface{}, error) {
	handle, err := f.Network.StartFlowByName(node, name, args)
	if err != nil {
		return nil, err
	}
	return f.await(handle)
}

func (f *Fixture) await(handle *simnet.FlowHandle) (interface{}, error) {
	if _, err := f.Network.RunNetwork(); err != nil {
		return nil, errors.WithMessagef(err, "network did not settle while running flow %s", handle.RunID())
	}
	return handle.Result()
}

// Identity returns the single identity of node. It panics if the node has more
// than one identity, which is a mistake in the test setup.
func Identity(node *simnet.Node) identity.Party {
	party, err := node.Identity()
	if err != nil {
		panic(err)
	}
	return party
}

// Identities maps Identity over nodes, preserving their order.
func Identities(nodes []*simnet.Node) []identity.Party {
	parties := make([]identity.Party, len(nodes))
	for i, node := range nodes {
		parties[i] = Identity(node)
	}
	return parties
}
