/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"github.com/hyperledger-labs/bnsim/pkg/types"
)

// FlowHandle tracks a flow submitted with StartFlow.
type FlowHandle struct {
	fiber *fiber
}

func (h *FlowHandle) RunID() types.FlowRunID {
	return h.fiber.runID
}

func (h *FlowHandle) Node() *Node {
	return h.fiber.node
}

// Done reports whether the flow has completed, successfully or not.
func (h *FlowHandle) Done() bool {
	return h.fiber.done
}

// Result returns what the flow returned. The error is the flow's own error, unchanged.
// Before the flow completes it returns ErrFlowNotComplete.
func (h *FlowHandle) Result() (interface{}, error) {
	if !h.fiber.done {
		return nil, ErrFlowNotComplete
	}
	return h.fiber.result, h.fiber.err
}
