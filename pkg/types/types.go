/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ================================================================================

// NodeID represents the numeric ID of a simulated node.
// IDs are assigned by the network in creation order, starting at 0.
type NodeID uint64

// Pb converts a NodeID to its underlying native type.
func (nid NodeID) Pb() uint64 {
	return uint64(nid)
}

// ================================================================================

// SessionID identifies one end of a flow session.
// Both ends of a session have distinct IDs, allocated by the initiating side.
type SessionID uint64

// Pb converts a SessionID to its underlying native type.
func (sid SessionID) Pb() uint64 {
	return uint64(sid)
}

// ================================================================================

// FlowRunID identifies one execution of a flow on a node.
type FlowRunID struct {
	uuid.UUID
}

// NewFlowRunID draws a version 4 UUID from randomness.
// Passing the network's seeded source keeps run IDs reproducible across test runs.
func NewFlowRunID(randomness io.Reader) (FlowRunID, error) {
	id, err := uuid.NewRandomFromReader(randomness)
	if err != nil {
		return FlowRunID{}, errors.WithMessage(err, "could not generate flow run id")
	}
	return FlowRunID{UUID: id}, nil
}

// ParseFlowRunID parses the string form produced by FlowRunID.String.
func ParseFlowRunID(s string) (FlowRunID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return FlowRunID{}, errors.WithMessagef(err, "invalid flow run id %q", s)
	}
	return FlowRunID{UUID: id}, nil
}

// ================================================================================

// VirtualTime is a point on the simulated clock, in milliseconds since the network epoch.
type VirtualTime int64

// Duration converts a VirtualTime offset to a time.Duration.
func (vt VirtualTime) Duration() time.Duration {
	return time.Duration(vt) * time.Millisecond
}

// At returns the wall-clock instant corresponding to vt for a network started at epoch.
func (vt VirtualTime) At(epoch time.Time) time.Time {
	return epoch.Add(vt.Duration())
}

// VirtualDuration rounds d up to whole virtual milliseconds.
// Non-positive durations map to zero.
func VirtualDuration(d time.Duration) VirtualTime {
	if d <= 0 {
		return 0
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	return VirtualTime(ms)
}
