/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"time"

	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/identity"
	"github.com/hyperledger-labs/bnsim/pkg/logging"
	"github.com/hyperledger-labs/bnsim/pkg/types"
)

// flowContext is the flow.Context handed to flows running in a fiber.
type flowContext struct {
	fiber *fiber
}

func (c *flowContext) RunID() types.FlowRunID {
	return c.fiber.runID
}

func (c *flowContext) OurIdentity() identity.Party {
	return c.fiber.node.party
}

func (c *flowContext) Notary() identity.Party {
	notary := c.fiber.node.network.notary
	if notary == nil {
		return identity.Party{}
	}
	return notary.party
}

func (c *flowContext) WellKnownParty(name identity.Name) (identity.Party, bool) {
	return c.fiber.node.network.WellKnownParty(name)
}

func (c *flowContext) InitiateFlow(kind flow.Kind, counterparty identity.Party) (flow.Session, error) {
	return c.fiber.node.network.initiate(c.fiber, kind, counterparty)
}

func (c *flowContext) SubFlow(sub flow.Flow) (interface{}, error) {
	return sub.Call(c)
}

func (c *flowContext) Sleep(d time.Duration) {
	n := c.fiber.node.network
	n.sleepTokens++
	token := n.sleepTokens

	c.fiber.sleepToken = token
	n.EventQueue.insertFlowResume(c.fiber, token, int64(types.VirtualDuration(d)))
	for c.fiber.sleepToken == token {
		c.fiber.suspend()
	}
}

func (c *flowContext) Now() time.Time {
	return c.fiber.node.network.Now()
}

func (c *flowContext) Logger() logging.Logger {
	return logging.Decorate(c.fiber.node.logger, "", "run", c.fiber.runID)
}
