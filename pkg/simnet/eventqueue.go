/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"bytes"
	"container/list"
	"fmt"
	"math/rand"

	"google.golang.org/protobuf/types/known/anypb"

	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/types"
)

// Event is an entry of the EventQueue.
// Exactly one of the pointer fields is set.
type Event struct {
	Target uint64
	Time   int64

	SessionInit   *EventSessionInit
	SessionData   *EventSessionData
	SessionEnd    *EventSessionEnd
	SessionReject *EventSessionReject
	FlowStart     *EventFlowStart
	FlowResume    *EventFlowResume
}

// EventSessionInit asks the target to start the responder registered for Kind.
type EventSessionInit struct {
	Source           uint64
	Kind             flow.Kind
	InitiatorSession types.SessionID
	ResponderSession types.SessionID
}

// EventSessionData carries one message to the session end Session of the target.
type EventSessionData struct {
	Source  uint64
	Session types.SessionID
	Payload *anypb.Any
}

// EventSessionEnd tells the target that the flow on the other end of Session finished.
// Error is empty if it finished successfully.
type EventSessionEnd struct {
	Source  uint64
	Session types.SessionID
	Error   string
}

// EventSessionReject tells the initiator that no responder answered its SessionInit.
type EventSessionReject struct {
	Source  uint64
	Session types.SessionID
	Reason  string
}

// EventFlowStart starts a flow submitted with StartFlow.
type EventFlowStart struct {
	fiber *fiber
}

// EventFlowResume wakes a sleeping flow.
type EventFlowResume struct {
	fiber *fiber
	token uint64
}

// IsMsg reports whether the event travels between nodes.
func (e *Event) IsMsg() bool {
	return e.SessionInit != nil || e.SessionData != nil || e.SessionEnd != nil || e.SessionReject != nil
}

// Source returns the sending node of a message event, and the target for all other events.
func (e *Event) Source() uint64 {
	switch {
	case e.SessionInit != nil:
		return e.SessionInit.Source
	case e.SessionData != nil:
		return e.SessionData.Source
	case e.SessionEnd != nil:
		return e.SessionEnd.Source
	case e.SessionReject != nil:
		return e.SessionReject.Source
	default:
		return e.Target
	}
}

// TypeName is a short human readable description of the event type.
func (e *Event) TypeName() string {
	switch {
	case e.SessionInit != nil:
		return "SessionInit"
	case e.SessionData != nil:
		return "SessionData"
	case e.SessionEnd != nil:
		return "SessionEnd"
	case e.SessionReject != nil:
		return "SessionReject"
	case e.FlowStart != nil:
		return "FlowStart"
	case e.FlowResume != nil:
		return "FlowResume"
	default:
		panic("unexpected event type")
	}
}

type EventQueue struct {
	// List is a list of *Event messages, in order of time.
	List *list.List

	// FakeTime is the current 'time' according to this queue.
	FakeTime int64

	// Rand is a source of randomness for the manglers
	Rand *rand.Rand

	// Mangler is invoked on each event when it is first consumed
	Mangler Mangler

	// Mangled tracks which events have already been mangled to prevent loops
	Mangled map[*Event]struct{}

	// OnDrop, if set, is called for every event a mangler discards.
	OnDrop func(*Event)
}

// ConsumeEvent removes and returns the earliest event, advancing FakeTime to it.
// It returns nil if the manglers dropped every remaining event.
func (l *EventQueue) ConsumeEvent() *Event {
	for l.List.Len() > 0 {
		event := l.List.Remove(l.List.Front()).(*Event)

		_, ok := l.Mangled[event]
		if ok || l.Mangler == nil {
			delete(l.Mangled, event)
			l.FakeTime = event.Time
			return event
		}

		mangleResults := l.Mangler.Mangle(l.Rand.Int(), event)
		if len(mangleResults) == 0 && l.OnDrop != nil {
			l.FakeTime = event.Time
			l.OnDrop(event)
		}

		for _, result := range mangleResults {
			if l.Mangled == nil {
				l.Mangled = map[*Event]struct{}{}
			}

			if !result.Remangle {
				l.Mangled[result.Event] = struct{}{}
			}

			l.InsertEvent(result.Event)
		}
	}

	return nil
}

func (l *EventQueue) InsertSessionInit(target uint64, init *EventSessionInit, fromNow int64) {
	l.InsertEvent(
		&Event{
			Target:      target,
			SessionInit: init,
			Time:        l.FakeTime + fromNow,
		},
	)
}

func (l *EventQueue) InsertSessionData(target uint64, data *EventSessionData, fromNow int64) {
	l.InsertEvent(
		&Event{
			Target:      target,
			SessionData: data,
			Time:        l.FakeTime + fromNow,
		},
	)
}

func (l *EventQueue) InsertSessionEnd(target uint64, end *EventSessionEnd, fromNow int64) {
	l.InsertEvent(
		&Event{
			Target:     target,
			SessionEnd: end,
			Time:       l.FakeTime + fromNow,
		},
	)
}

func (l *EventQueue) InsertSessionReject(target uint64, reject *EventSessionReject, fromNow int64) {
	l.InsertEvent(
		&Event{
			Target:        target,
			SessionReject: reject,
			Time:          l.FakeTime + fromNow,
		},
	)
}

func (l *EventQueue) insertFlowStart(f *fiber, fromNow int64) {
	l.InsertEvent(
		&Event{
			Target:    f.node.id.Pb(),
			FlowStart: &EventFlowStart{fiber: f},
			Time:      l.FakeTime + fromNow,
		},
	)
}

func (l *EventQueue) insertFlowResume(f *fiber, token uint64, fromNow int64) {
	l.InsertEvent(
		&Event{
			Target:     f.node.id.Pb(),
			FlowResume: &EventFlowResume{fiber: f, token: token},
			Time:       l.FakeTime + fromNow,
		},
	)
}

// InsertEvent places event after every queued event with the same or an earlier time.
func (l *EventQueue) InsertEvent(event *Event) {
	if event.Time < l.FakeTime {
		panic("attempted to modify the past")
	}

	for el := l.List.Front(); el != nil; el = el.Next() {
		if el.Value.(*Event).Time > event.Time {
			l.List.InsertBefore(event, el)
			return
		}
	}

	l.List.PushBack(event)
}

// RemoveTarget discards every queued event addressed to target.
func (l *EventQueue) RemoveTarget(target uint64) int {
	removed := 0
	el := l.List.Front()
	for el != nil {
		x := el
		el = el.Next()
		if x.Value.(*Event).Target == target {
			l.List.Remove(x)
			removed++
		}
	}
	return removed
}

func (l *EventQueue) Status() string {
	count := l.List.Len()
	if count == 0 {
		return "Empty EventQueue"
	}

	el := l.List.Front()
	var buf bytes.Buffer
	for i := 0; i < 50; i++ {
		event := el.Value.(*Event)
		fmt.Fprintf(&buf, "[node=%d, event_type=%s time=%d source=%d]\n", event.Target, event.TypeName(), event.Time, event.Source())
		el = el.Next()
		if el == nil {
			fmt.Fprintf(&buf, "\nCompleted eventqueue summary of %d events\n", count)
			return buf.String()
		}
	}

	fmt.Fprintf(&buf, "\n ... skipping %d entries ... \n", count-50)
	return buf.String()
}
