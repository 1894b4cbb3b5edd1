/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/types"
)

// fiberKilled is the panic value used to unwind a flow whose node is stopped.
type fiberKilled struct{}

// fiber executes one flow on its own goroutine, in lock step with the network.
// The network hands control to the fiber through resumeC and waits on yieldC
// until the fiber suspends or finishes, so exactly one goroutine runs at a time.
type fiber struct {
	node   *Node
	runID  types.FlowRunID
	flow   flow.Flow
	handle *FlowHandle

	resumeC chan struct{}
	yieldC  chan struct{}

	started bool
	done    bool
	killed  bool

	// waitingOn is the session the suspended fiber receives from.
	waitingOn *session

	// sleepToken identifies the pending wake up of a sleeping fiber, zero if not sleeping.
	sleepToken uint64

	// sessions are every session end opened or answered by this fiber.
	sessions []*session

	result interface{}
	err    error
}

func newFiber(node *Node, runID types.FlowRunID, f flow.Flow) *fiber {
	return &fiber{
		node:    node,
		runID:   runID,
		flow:    f,
		resumeC: make(chan struct{}),
		yieldC:  make(chan struct{}),
	}
}

// resume transfers control to the fiber and blocks until it yields it back.
func (f *fiber) resume() {
	if f.done {
		return
	}

	if !f.started {
		f.started = true
		go f.run()
	} else {
		f.waitingOn = nil
		f.resumeC <- struct{}{}
	}
	<-f.yieldC
}

// suspend yields control to the network. It must only be called from the fiber's goroutine.
func (f *fiber) suspend() {
	f.yieldC <- struct{}{}
	<-f.resumeC
	if f.killed {
		panic(fiberKilled{})
	}
}

// kill unwinds a suspended fiber.
func (f *fiber) kill() {
	if f.done {
		return
	}

	f.killed = true
	if !f.started {
		f.done = true
		f.err = ErrNodeStopped
		return
	}
	f.resumeC <- struct{}{}
	<-f.yieldC
}

func (f *fiber) run() {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(fiberKilled); ok {
				f.result, f.err = nil, ErrNodeStopped
			} else {
				f.result = nil
				f.err = errors.Errorf("flow panicked: %v\n%s", r, debug.Stack())
			}
		}
		f.done = true
		f.yieldC <- struct{}{}
	}()

	f.result, f.err = f.flow.Call(&flowContext{fiber: f})
}

func (f *fiber) String() string {
	return fmt.Sprintf("%s@%s", f.runID, f.node.party)
}
