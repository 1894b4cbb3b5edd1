/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package eventlog records the events processed by a simulated network and reads them back.
//
// A log is a gzip stream of varint size-prefixed protocol buffer messages,
// one google.protobuf.Struct per Entry.
package eventlog

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Type is the type of a recorded event.
type Type string

const (
	TypeNodeCreated   Type = "NodeCreated"
	TypeFlowStarted   Type = "FlowStarted"
	TypeFlowResumed   Type = "FlowResumed"
	TypeFlowFinished  Type = "FlowFinished"
	TypeSessionInit   Type = "SessionInit"
	TypeSessionData   Type = "SessionData"
	TypeSessionEnd    Type = "SessionEnd"
	TypeSessionReject Type = "SessionReject"
	TypeDropped       Type = "Dropped"
	TypeNodeStopped   Type = "NodeStopped"
)

// AllTypes lists every event type, in the order above.
var AllTypes = []Type{
	TypeNodeCreated,
	TypeFlowStarted,
	TypeFlowResumed,
	TypeFlowFinished,
	TypeSessionInit,
	TypeSessionData,
	TypeSessionEnd,
	TypeSessionReject,
	TypeDropped,
	TypeNodeStopped,
}

// Entry is one recorded event.
type Entry struct {
	// Node is the ID of the node that processed the event.
	Node uint64

	// Time is the virtual time, in milliseconds, at which the event was processed.
	Time int64

	Type Type

	// RunID is the run id of the flow involved, if any.
	RunID string

	// Session is the ID of the receiving session end, if any.
	Session uint64

	// Source is the ID of the node that sent the message, for session events.
	Source uint64

	// Kind is the flow kind of a session initiation.
	Kind string

	// Payload is the full name of the protobuf message carried by a data event.
	Payload string

	// Detail is free text, e.g. the error a flow failed with.
	Detail string
}

// Proto converts the entry to its serialized form.
func (e *Entry) Proto() *structpb.Struct {
	fields := map[string]*structpb.Value{
		"node": structpb.NewNumberValue(float64(e.Node)),
		"time": structpb.NewNumberValue(float64(e.Time)),
		"type": structpb.NewStringValue(string(e.Type)),
	}

	if e.RunID != "" {
		fields["run_id"] = structpb.NewStringValue(e.RunID)
	}
	if e.Session != 0 {
		fields["session"] = structpb.NewNumberValue(float64(e.Session))
	}
	if e.Source != 0 {
		fields["source"] = structpb.NewNumberValue(float64(e.Source))
	}
	if e.Kind != "" {
		fields["kind"] = structpb.NewStringValue(e.Kind)
	}
	if e.Payload != "" {
		fields["payload"] = structpb.NewStringValue(e.Payload)
	}
	if e.Detail != "" {
		fields["detail"] = structpb.NewStringValue(e.Detail)
	}

	return &structpb.Struct{Fields: fields}
}

// Marshal returns the protobuf encoding of the entry, without size prefix.
func (e *Entry) Marshal() ([]byte, error) {
	data, err := proto.Marshal(e.Proto())
	if err != nil {
		return nil, errors.WithMessage(err, "could not marshal entry")
	}
	return data, nil
}

// EntryFromProto is the inverse of Entry.Proto.
func EntryFromProto(s *structpb.Struct) (*Entry, error) {
	fields := s.GetFields()

	typeValue, ok := fields["type"]
	if !ok {
		return nil, errors.Errorf("malformed entry: no type")
	}

	e := &Entry{
		Type:    Type(typeValue.GetStringValue()),
		Node:    uint64(fields["node"].GetNumberValue()),
		Time:    int64(fields["time"].GetNumberValue()),
		RunID:   fields["run_id"].GetStringValue(),
		Session: uint64(fields["session"].GetNumberValue()),
		Source:  uint64(fields["source"].GetNumberValue()),
		Kind:    fields["kind"].GetStringValue(),
		Payload: fields["payload"].GetStringValue(),
		Detail:  fields["detail"].GetStringValue(),
	}

	return e, nil
}
