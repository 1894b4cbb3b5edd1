/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"fmt"
	"reflect"

	"github.com/hyperledger-labs/bnsim/pkg/flow"
)

type Mangler interface {
	Mangle(random int, event *Event) []MangleResult
}

type MangleResult struct {
	Event    *Event
	Remangle bool
}

// EventMangling is meant to be an easy way to construct test descriptions.
// Each method of a Mangling returns itself or another Mangling to make them easy
// to concatenate.  For instance:
//   For(MatchMsgs().FromNodes(1,3).AtPercent(10)).Drop()
// will for all messages from nodes 1 and 3, ten percent of the time, drop them.
// Note that order is important here.  Another perfectly valid string would be:
//   For(MatchMsgs().AtPercent(10).FromNodes(1,3)).Drop()
// But here, because filters are applied first to last, on 10 percent of messages,
// if they are from nodes 1 and 3, they will be dropped.

type MangleMatcher interface {
	Matches(random int, event *Event) bool
}

// Until is useful to perform a mangling until some condition is complete.  This is useful
// especially for delaying an event until after a condition occurs, or for fixing a fault
// after some period of time.
func Until(matcher MangleMatcher) *Mangling {
	matched := false
	return &Mangling{
		Filter: InlineMatcher(func(random int, event *Event) bool {
			if matched || matcher.Matches(random, event) {
				matched = true
				return false
			}

			return true
		}),
	}
}

// After is useful to begin a mangling after some action occurs.  This is useful especially
// for allowing the network to get into a desired state before injecting a fault.
func After(matcher MangleMatcher) *Mangling {
	matched := false
	return &Mangling{
		Filter: InlineMatcher(func(random int, event *Event) bool {
			if matched || matcher.Matches(random, event) {
				matched = true
				return true
			}

			return false
		}),
	}
}

// For is a simple way to apply a mangler whenever a condition is satisfied.
func For(matcher MangleMatcher) *Mangling {
	return &Mangling{
		Filter: matcher,
	}
}

// Mangling is usually constructed via For/After/Until and is used to
// conditionally apply a Mangler.
type Mangling struct {
	Filter MangleMatcher
}

func (m *Mangling) Do(mangler Mangler) Mangler {
	return InlineMangler(func(random int, event *Event) []MangleResult {
		if !m.Filter.Matches(random, event) {
			return []MangleResult{
				{
					Event: event,
				},
			}
		}

		return mangler.Mangle(random, event)
	})
}

func (m *Mangling) Drop() Mangler {
	return m.Do(DropMangler{})
}

func (m *Mangling) Jitter(maxDelay int) Mangler {
	return m.Do(&JitterMangler{MaxDelay: maxDelay})
}

func (m *Mangling) Duplicate(maxDelay int) Mangler {
	return m.Do(&DuplicateMangler{MaxDelay: maxDelay})
}

func (m *Mangling) Delay(delay int) Mangler {
	return m.Do(&DelayMangler{Delay: delay})
}

// MatchMsgs matches the session messages travelling between nodes.
func MatchMsgs() *MsgMatching {
	return newMsgMatching()
}

// MatchFlowStarts matches the start of flows submitted through StartFlow.
func MatchFlowStarts() *FlowMatching {
	fm := &FlowMatching{}

	fm.Filters = []mangleFilter{
		{
			eventType: func(event *Event) bool {
				return event.FlowStart != nil
			},
		},
	}
	initializeMatching(fm)

	return fm
}

type InlineMatcher func(random int, event *Event) bool

func (im InlineMatcher) Matches(random int, event *Event) bool {
	return im(random, event)
}

type InlineMangler func(random int, event *Event) []MangleResult

func (im InlineMangler) Mangle(random int, event *Event) []MangleResult {
	return im(random, event)
}

// Chain applies manglers in order, each to the results of the previous one.
func Chain(manglers ...Mangler) Mangler {
	return InlineMangler(func(random int, event *Event) []MangleResult {
		results := []MangleResult{{Event: event}}
		for _, mangler := range manglers {
			var next []MangleResult
			for _, result := range results {
				next = append(next, mangler.Mangle(random, result.Event)...)
			}
			results = next
		}
		return results
	})
}

type mangleFilter struct {
	msgKind   func(kind flow.Kind) bool
	msgSource func(target, source uint64) bool
	eventType func(event *Event) bool
	target    func(target uint64) bool
	blind     func(random int) bool
}

func (mf mangleFilter) apply(random int, event *Event) bool {
	switch {
	case mf.msgKind != nil:
		if event.SessionInit == nil {
			return false
		}
		return mf.msgKind(event.SessionInit.Kind)
	case mf.msgSource != nil:
		return mf.msgSource(event.Target, event.Source())
	case mf.target != nil:
		return mf.target(event.Target)
	case mf.eventType != nil:
		return mf.eventType(event)
	case mf.blind != nil:
		return mf.blind(random)
	default:
		panic("no function set in manglefilter")
	}
}

func initializeMatching(mangling interface{}) {
	value := reflect.ValueOf(mangling)
	if value.Kind() != reflect.Ptr {
		panic("expected mangling to be a pointer")
	}

	structValue := value.Elem()
	if structValue.Kind() != reflect.Struct {
		panic("expected mangling to point to a struct")
	}

	filtersField := structValue.FieldByName("Filters")
	if filtersField.Kind() != reflect.Slice {
		panic("expected filters to be of type Slice")
	}

	structType := structValue.Type()
	for i := 0; i < structType.NumField(); i++ {
		structField := structType.Field(i)
		if structField.Name == "Filters" || structField.Name == "matching" {
			continue
		}

		if structField.Type.Kind() != reflect.Func {
			panic("expected mangling members to be functions")
		}

		baseStruct := reflect.ValueOf(baseMangling{})
		baseMethod, ok := baseStruct.Type().MethodByName(structField.Name)
		if !ok {
			panic(fmt.Sprintf("implemention for %s not found in base mangling", structField.Name))
		}

		f := reflect.MakeFunc(structField.Type, func(args []reflect.Value) []reflect.Value {
			var result []reflect.Value
			argsWithReceiver := append([]reflect.Value{baseStruct}, args...)
			if structField.Type.IsVariadic() {
				result = baseMethod.Func.CallSlice(argsWithReceiver)
			} else {
				result = baseMethod.Func.Call(argsWithReceiver)
			}

			if len(result) != 1 {
				panic(fmt.Sprintf("expected only one result but got %d", len(result)))
			}

			mf, ok := result[0].Interface().(mangleFilter)
			if !ok {
				panic(fmt.Sprintf("expected result of type mangleFilter but got %T", mf))
			}

			outType := structField.Type.Out(0)
			if outType.Kind() != reflect.Ptr {
				panic(fmt.Sprintf("expected return type kind to be a ptr, but got %v", outType.Kind()))
			}

			newValue := reflect.New(outType.Elem())
			newValue.Elem().FieldByName("Filters").Set(reflect.Append(filtersField, result[0]))
			initializeMatching(newValue.Interface())

			return []reflect.Value{newValue}
		})

		structValue.Field(i).Set(f)
	}
}

type MsgTypeMatching struct {
	matching

	FromNode  func(nodeID uint64) *MsgTypeMatching
	FromNodes func(nodeIDs ...uint64) *MsgTypeMatching
	ToNode    func(nodeID uint64) *MsgTypeMatching
	ToNodes   func(nodeIDs ...uint64) *MsgTypeMatching
	AtPercent func(percent int) *MsgTypeMatching
	OfKind    func(kind flow.Kind) *MsgTypeMatching
}

type MsgMatching struct {
	matching

	FromNode     func(nodeID uint64) *MsgMatching
	FromNodes    func(nodeIDs ...uint64) *MsgMatching
	ToNode       func(nodeID uint64) *MsgMatching
	ToNodes      func(nodeIDs ...uint64) *MsgMatching
	AtPercent    func(percent int) *MsgMatching
	OfKind       func(kind flow.Kind) *MsgTypeMatching
	OfTypeInit   func() *MsgTypeMatching
	OfTypeData   func() *MsgTypeMatching
	OfTypeEnd    func() *MsgTypeMatching
	OfTypeReject func() *MsgTypeMatching
}

func newMsgMatching() *MsgMatching {
	mm := &MsgMatching{}

	mm.Filters = []mangleFilter{
		{
			eventType: func(event *Event) bool {
				return event.IsMsg()
			},
		},
	}
	initializeMatching(mm)

	return mm
}

type FlowMatching struct {
	matching

	ToNode    func(nodeID uint64) *FlowMatching
	ToNodes   func(nodeIDs ...uint64) *FlowMatching
	AtPercent func(percent int) *FlowMatching
}

type matching struct {
	Filters []mangleFilter
}

func (m matching) Matches(random int, event *Event) bool {
	for _, filter := range m.Filters {
		if !filter.apply(random, event) {
			return false
		}
	}

	return true
}

type baseMangling struct{}

// FromNode may only be safely bound into a mangling if
// the mangling ensures all events are messages.
func (baseMangling) FromNode(source uint64) mangleFilter {
	return mangleFilter{
		msgSource: func(target, actualSource uint64) bool {
			return actualSource == source
		},
	}
}

// FromNodes may only be safely bound into a mangling if
// the mangling ensures all events are messages.
func (baseMangling) FromNodes(sources ...uint64) mangleFilter {
	return mangleFilter{
		msgSource: func(target, actualSource uint64) bool {
			for _, source := range sources {
				if source == actualSource {
					return true
				}
			}
			return false
		},
	}
}

// ToNode may be safely bound into all manglings.
func (baseMangling) ToNode(target uint64) mangleFilter {
	return mangleFilter{
		target: func(actualNode uint64) bool {
			return target == actualNode
		},
	}
}

// ToNodes may be safely bound into all manglings.
func (baseMangling) ToNodes(targets ...uint64) mangleFilter {
	return mangleFilter{
		target: func(actualNode uint64) bool {
			for _, target := range targets {
				if target == actualNode {
					return true
				}
			}
			return false
		},
	}
}

// AtPercent may be safely bound into all manglings.
func (baseMangling) AtPercent(percent int) mangleFilter {
	return mangleFilter{
		blind: func(random int) bool {
			return random%100 < percent
		},
	}
}

// OfKind matches the session initiations requesting kind.
func (baseMangling) OfKind(kind flow.Kind) mangleFilter {
	return mangleFilter{
		msgKind: func(actualKind flow.Kind) bool {
			return kind == actualKind
		},
	}
}

func (baseMangling) OfTypeInit() mangleFilter {
	return mangleFilter{
		eventType: func(event *Event) bool {
			return event.SessionInit != nil
		},
	}
}

func (baseMangling) OfTypeData() mangleFilter {
	return mangleFilter{
		eventType: func(event *Event) bool {
			return event.SessionData != nil
		},
	}
}

func (baseMangling) OfTypeEnd() mangleFilter {
	return mangleFilter{
		eventType: func(event *Event) bool {
			return event.SessionEnd != nil
		},
	}
}

func (baseMangling) OfTypeReject() mangleFilter {
	return mangleFilter{
		eventType: func(event *Event) bool {
			return event.SessionReject != nil
		},
	}
}

type DropMangler struct{}

func (DropMangler) Mangle(random int, event *Event) []MangleResult {
	return nil
}

type DuplicateMangler struct {
	MaxDelay int
}

func (dm *DuplicateMangler) Mangle(random int, event *Event) []MangleResult {
	clone := *event // Payloads are never modified in place, sharing them is safe.
	clone.Time += randomDelay(random, dm.MaxDelay)
	return []MangleResult{
		{
			Event: event,
		},
		{
			Event: &clone,
		},
	}
}

// randomDelay picks a delay below maxDelay. A non-positive maxDelay means no delay.
func randomDelay(random, maxDelay int) int64 {
	if maxDelay <= 0 {
		return 0
	}
	return int64(random % maxDelay)
}

// JitterMangler will delay events a random amount of time, up to MaxDelay
type JitterMangler struct {
	MaxDelay int
}

func (jm *JitterMangler) Mangle(random int, event *Event) []MangleResult {
	event.Time += randomDelay(random, jm.MaxDelay)
	return []MangleResult{
		{
			Event: event,
		},
	}
}

// DelayMangler will delay events a specified amount of time.
// The delayed event is mangled again, so it is meant to be combined with Until.
type DelayMangler struct {
	Delay int
}

func (dm *DelayMangler) Mangle(random int, event *Event) []MangleResult {
	event.Time += int64(dm.Delay)
	return []MangleResult{
		{
			Event:    event,
			Remangle: true,
		},
	}
}
