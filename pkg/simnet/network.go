/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package simnet is a deterministic, single threaded simulation of a network of ledger nodes.
//
// Nothing happens in the background: events (session messages, flow starts,
// wake ups) wait in an EventQueue ordered by virtual time, and the network only
// makes progress when the caller invokes Step or RunNetwork. Flows run as
// fibers which suspend while waiting on a session or sleeping, so at most one
// flow executes at any moment and a run is reproducible from its seed.
package simnet

import (
	"container/list"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/hyperledger-labs/bnsim/pkg/bundle"
	"github.com/hyperledger-labs/bnsim/pkg/crypto"
	"github.com/hyperledger-labs/bnsim/pkg/eventlog"
	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/identity"
	"github.com/hyperledger-labs/bnsim/pkg/journal"
	"github.com/hyperledger-labs/bnsim/pkg/logging"
	"github.com/hyperledger-labs/bnsim/pkg/notary"
	"github.com/hyperledger-labs/bnsim/pkg/types"
)

var (
	// ErrFlowNotComplete is returned for a flow that is still suspended.
	ErrFlowNotComplete = errors.New("flow has not completed")

	// ErrNetworkStopped is returned by operations on a stopped network.
	ErrNetworkStopped = errors.New("network is stopped")

	// ErrNodeStopped is the result of flows killed by stopping their node.
	ErrNodeStopped = errors.New("node is stopped")
)

// DefaultEpoch is the wall-clock instant of virtual time zero.
var DefaultEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	DefaultLinkLatency       = 10 * time.Millisecond
	DefaultProcessingLatency = time.Millisecond
)

// DrainLimitError is returned when the network did not quiesce within the drain limit.
type DrainLimitError struct {
	Limit   int
	Pending int
	Status  string
}

func (e *DrainLimitError) Error() string {
	return fmt.Sprintf("network did not quiesce within %d steps, %d events pending", e.Limit, e.Pending)
}

type Config struct {
	// Seed drives keys, run ids and manglers.
	Seed int64

	// Epoch is the wall-clock instant of virtual time zero, DefaultEpoch if unset.
	Epoch time.Time

	// LinkLatency is the virtual delay of every session message.
	LinkLatency time.Duration

	// ProcessingLatency is the virtual delay between submitting a flow and its start.
	ProcessingLatency time.Duration

	// DrainLimit bounds the number of steps of RunNetwork, zero means unbounded.
	DrainLimit int

	// Directory, if set, receives a fresh subdirectory per network holding
	// the per-node journals and the notary database.
	Directory string

	// EventLog, if set, receives a recording of every processed event.
	EventLog io.Writer

	Logger logging.Logger

	// Registerer receives the network metrics. A fresh registry is used if nil.
	Registerer prometheus.Registerer

	Mangler Mangler

	// Bundles are the names of the code bundles, resolved against Registry, loaded on every node.
	Bundles  []string
	Registry *bundle.Registry
}

type Network struct {
	EventQueue *EventQueue

	config    Config
	directory string
	nodes     []*Node
	byName  map[identity.Name]*Node
	notary  *Node
	bundles bundle.Set

	keys        *crypto.PseudoKeys
	runIDSource *rand.Rand
	recorder    *eventlog.Recorder
	metrics     *Metrics
	logger      logging.Logger

	lastSessionID types.SessionID
	sleepTokens   uint64
	stopped       bool
}

// New creates an empty network. Nodes are added with CreateNotary and CreateNode.
func New(config Config) (*Network, error) {
	if config.Logger == nil {
		config.Logger = logging.NilLogger
	}
	if config.Epoch.IsZero() {
		config.Epoch = DefaultEpoch
	}
	if config.LinkLatency == 0 {
		config.LinkLatency = DefaultLinkLatency
	}
	if config.ProcessingLatency == 0 {
		config.ProcessingLatency = DefaultProcessingLatency
	}
	if config.Registry == nil {
		config.Registry = bundle.Default
	}
	if config.DrainLimit < 0 {
		return nil, errors.Errorf("invalid drain limit %d", config.DrainLimit)
	}

	bundles, err := config.Registry.Resolve(config.Bundles)
	if err != nil {
		return nil, errors.WithMessage(err, "could not load bundles")
	}

	metrics, err := NewMetrics(config.Registerer)
	if err != nil {
		return nil, err
	}

	// The logger is shared with the notary database, which logs from its own goroutines.
	n := &Network{
		config:      config,
		byName:      map[identity.Name]*Node{},
		bundles:     bundles,
		keys:        crypto.NewPseudoKeys(config.Seed),
		runIDSource: rand.New(rand.NewSource(config.Seed)),
		metrics:     metrics,
		logger:      logging.Synchronize(config.Logger),
	}

	n.EventQueue = &EventQueue{
		List:    list.New(),
		Rand:    rand.New(rand.NewSource(config.Seed)),
		Mangler: config.Mangler,
		OnDrop: func(event *Event) {
			n.drop(event, "mangled")
		},
	}

	if config.Directory != "" {
		// Networks sharing a Directory must never see each other's notary database.
		n.directory = filepath.Join(config.Directory, "network-"+uuid.New().String())
		if err := os.MkdirAll(n.directory, 0700); err != nil {
			metrics.unregister()
			return nil, errors.WithMessage(err, "could not create network directory")
		}
	}

	if config.EventLog != nil {
		n.recorder = eventlog.NewRecorder(config.EventLog)
	}

	return n, nil
}

// CreateNotary creates the network's consensus-service node.
// The notary answers notary.NotariseFlow in addition to params.Responders.
func (n *Network) CreateNotary(params NodeParameters) (*Node, error) {
	if n.notary != nil {
		return nil, errors.Errorf("network already has notary %s", n.notary.party)
	}

	node, err := n.createNode(params, true)
	if err != nil {
		return nil, err
	}
	n.notary = node
	return node, nil
}

// CreateNode creates a node holding the identities and responders of params.
func (n *Network) CreateNode(params NodeParameters) (*Node, error) {
	return n.createNode(params, false)
}

func (n *Network) createNode(params NodeParameters, isNotary bool) (*Node, error) {
	if n.stopped {
		return nil, ErrNetworkStopped
	}

	names := append([]identity.Name{params.LegalName}, params.AdditionalLegalNames...)
	seen := map[identity.Name]struct{}{}
	for _, name := range names {
		if err := name.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "invalid legal name %q", name)
		}
		if _, ok := n.byName[name]; ok {
			return nil, errors.Errorf("a node named %s already exists", name)
		}
		if _, ok := seen[name]; ok {
			return nil, errors.Errorf("identity %s given twice", name)
		}
		seen[name] = struct{}{}
	}

	responders := map[flow.Kind]flow.Responder{}
	for _, responder := range params.Responders {
		if responder.New == nil {
			return nil, errors.Errorf("responder for kind %s has no factory", responder.Kind)
		}
		if _, ok := responders[responder.Kind]; ok {
			return nil, errors.Errorf("responder for kind %s registered twice", responder.Kind)
		}
		responders[responder.Kind] = responder
	}

	node := &Node{
		network:    n,
		id:         types.NodeID(len(n.nodes)),
		responders: responders,
		sessions:   map[types.SessionID]*session{},
		logger:     logging.Decorate(n.logger, params.LegalName.String()+": "),
	}

	for _, name := range names {
		signer, publicKey, err := n.keys.Next()
		if err != nil {
			return nil, errors.WithMessagef(err, "could not generate key for %s", name)
		}
		node.identities = append(node.identities, identity.Party{Name: name, OwningKey: publicKey})
		node.signers = append(node.signers, signer)
	}
	node.party = node.identities[0]

	var nodeDir string
	if n.directory != "" {
		nodeDir = filepath.Join(n.directory, fmt.Sprintf("%d", node.id))
		if err := os.MkdirAll(nodeDir, 0700); err != nil {
			return nil, errors.WithMessagef(err, "could not create directory for node %s", node.party)
		}

		j, err := journal.Open(filepath.Join(nodeDir, "journal"))
		if err != nil {
			return nil, errors.WithMessagef(err, "could not open journal of node %s", node.party)
		}
		node.journal = j
	}

	if isNotary {
		storeDir := ""
		if nodeDir != "" {
			storeDir = filepath.Join(nodeDir, "notary")
		}
		store, err := notary.Open(storeDir, node.logger)
		if err != nil {
			if node.journal != nil {
				node.journal.Close()
			}
			return nil, errors.WithMessagef(err, "could not open uniqueness store of %s", node.party)
		}
		node.notaryStore = store

		service := &notary.Service{Store: store, Signer: node.signers[0]}
		responder := service.Responder()
		if _, ok := node.responders[responder.Kind]; ok {
			if node.journal != nil {
				node.journal.Close()
			}
			store.Close()
			return nil, errors.Errorf("responder for kind %s is reserved for the notary", responder.Kind)
		}
		node.responders[responder.Kind] = responder
	}

	n.nodes = append(n.nodes, node)
	for _, id := range node.identities {
		n.byName[id.Name] = node
	}

	node.logger.Log(logging.LevelDebug, "node created", "id", node.id, "key", node.party.OwningKey, "responders", len(node.responders))
	if err := n.record(node, &eventlog.Entry{
		Type:   eventlog.TypeNodeCreated,
		Detail: node.party.String(),
	}); err != nil {
		return nil, err
	}

	return node, nil
}

// Nodes returns every node in creation order.
func (n *Network) Nodes() []*Node {
	result := make([]*Node, len(n.nodes))
	copy(result, n.nodes)
	return result
}

// Notary returns the notary node, nil if none was created.
func (n *Network) Notary() *Node {
	return n.notary
}

// WellKnownParty looks up the identity called name.
func (n *Network) WellKnownParty(name identity.Name) (identity.Party, bool) {
	node, ok := n.byName[name]
	if !ok {
		return identity.Party{}, false
	}
	for _, id := range node.identities {
		if id.Name == name {
			return id, true
		}
	}
	return identity.Party{}, false
}

// Directory returns the directory of this network's journals and notary database,
// the empty string if nothing is kept on disk.
func (n *Network) Directory() string {
	return n.directory
}

func (n *Network) Metrics() *Metrics {
	return n.metrics
}

func (n *Network) Bundles() bundle.Set {
	return n.bundles
}

// Now returns the current virtual time.
func (n *Network) Now() time.Time {
	return types.VirtualTime(n.EventQueue.FakeTime).At(n.config.Epoch)
}

// Quiescent reports whether no event is pending.
func (n *Network) Quiescent() bool {
	return n.EventQueue.List.Len() == 0
}

func (n *Network) Stopped() bool {
	return n.stopped
}

// StartFlow submits f to node. The flow starts during the next drain.
func (n *Network) StartFlow(node *Node, f flow.Flow) (*FlowHandle, error) {
	if n.stopped {
		return nil, ErrNetworkStopped
	}
	if node == nil || node.network != n {
		return nil, errors.New("node is not part of this network")
	}
	if node.stopped {
		return nil, ErrNodeStopped
	}
	if f == nil {
		return nil, errors.New("no flow given")
	}

	fib, err := n.newFiber(node, f)
	if err != nil {
		return nil, err
	}
	fib.handle = &FlowHandle{fiber: fib}
	n.EventQueue.insertFlowStart(fib, int64(types.VirtualDuration(n.config.ProcessingLatency)))
	return fib.handle, nil
}

// StartFlowByName submits the bundle flow called name, built from args.
func (n *Network) StartFlowByName(node *Node, name string, args proto.Message) (*FlowHandle, error) {
	factory, ok := n.bundles.Flow(name)
	if !ok {
		return nil, errors.Errorf("no flow named %s in bundles %v", name, n.bundles.Names())
	}

	f, err := factory(args)
	if err != nil {
		return nil, errors.WithMessagef(err, "could not create flow %s", name)
	}
	return n.StartFlow(node, f)
}

func (n *Network) newFiber(node *Node, f flow.Flow) (*fiber, error) {
	runID, err := types.NewFlowRunID(n.runIDSource)
	if err != nil {
		return nil, err
	}
	fib := newFiber(node, runID, f)
	node.fibers = append(node.fibers, fib)
	n.metrics.FlowsStarted.Inc()
	return fib, nil
}

// Step processes the earliest pending event.
func (n *Network) Step() error {
	if n.stopped {
		return ErrNetworkStopped
	}

	if n.EventQueue.List.Len() == 0 {
		return errors.Errorf("event queue is empty, nothing to do")
	}

	event := n.EventQueue.ConsumeEvent()
	n.metrics.VirtualTime.Set(float64(n.EventQueue.FakeTime))
	if event == nil {
		return nil
	}

	node := n.nodes[int(event.Target)]
	if node.stopped {
		n.drop(event, "node stopped")
		return nil
	}
	n.metrics.EventsProcessed.WithLabelValues(event.TypeName()).Inc()

	switch {
	case event.FlowStart != nil:
		fib := event.FlowStart.fiber
		if fib.started || fib.done {
			return nil
		}
		if err := n.record(node, &eventlog.Entry{
			Type:  eventlog.TypeFlowStarted,
			RunID: fib.runID.String(),
		}); err != nil {
			return err
		}
		return n.runFiber(fib)
	case event.FlowResume != nil:
		fib := event.FlowResume.fiber
		if fib.done || fib.sleepToken != event.FlowResume.token {
			return nil
		}
		fib.sleepToken = 0
		if err := n.record(node, &eventlog.Entry{
			Type:  eventlog.TypeFlowResumed,
			RunID: fib.runID.String(),
		}); err != nil {
			return err
		}
		return n.runFiber(fib)
	case event.SessionInit != nil:
		return n.processInit(node, event.SessionInit)
	case event.SessionData != nil:
		data := event.SessionData
		s, ok := node.sessions[data.Session]
		if !ok || s.closed {
			n.drop(event, "session closed")
			return nil
		}
		s.inbox = append(s.inbox, data.Payload)
		if err := n.record(node, &eventlog.Entry{
			Type:    eventlog.TypeSessionData,
			RunID:   s.owner.runID.String(),
			Session: data.Session.Pb(),
			Source:  data.Source,
			Payload: string(data.Payload.MessageName()),
		}); err != nil {
			return err
		}
		return n.wake(s)
	case event.SessionEnd != nil:
		end := event.SessionEnd
		s, ok := node.sessions[end.Session]
		if !ok {
			n.drop(event, "unknown session")
			return nil
		}
		if s.closed || s.endErr != nil {
			// Both ends finished concurrently.
			return nil
		}
		if end.Error == "" {
			s.endErr = flow.ErrSessionEnded
		} else {
			s.endErr = &flow.CounterpartyError{Party: s.counterparty, Message: end.Error}
		}
		if err := n.record(node, &eventlog.Entry{
			Type:    eventlog.TypeSessionEnd,
			RunID:   s.owner.runID.String(),
			Session: end.Session.Pb(),
			Source:  end.Source,
			Detail:  end.Error,
		}); err != nil {
			return err
		}
		return n.wake(s)
	case event.SessionReject != nil:
		reject := event.SessionReject
		s, ok := node.sessions[reject.Session]
		if !ok {
			n.drop(event, "unknown session")
			return nil
		}
		if s.closed || s.endErr != nil {
			return nil
		}
		s.endErr = &flow.SessionRejectedError{Kind: s.kind, Party: s.counterparty, Reason: reject.Reason}
		if err := n.record(node, &eventlog.Entry{
			Type:    eventlog.TypeSessionReject,
			RunID:   s.owner.runID.String(),
			Session: reject.Session.Pb(),
			Source:  reject.Source,
			Kind:    string(s.kind),
			Detail:  reject.Reason,
		}); err != nil {
			return err
		}
		return n.wake(s)
	default:
		return errors.Errorf("unknown event type")
	}
}

func (n *Network) processInit(node *Node, init *EventSessionInit) error {
	if _, ok := node.sessions[init.ResponderSession]; ok {
		// Duplicated on the wire.
		n.drop(&Event{Target: node.id.Pb(), SessionInit: init}, "duplicate session")
		return nil
	}

	initiator := n.nodes[int(init.Source)]
	responder, ok := node.responders[init.Kind]
	if !ok {
		reason := fmt.Sprintf("no responder registered for %s", init.Kind)
		node.logger.Log(logging.LevelInfo, "rejecting session", "kind", init.Kind, "from", initiator.party)
		if err := n.record(node, &eventlog.Entry{
			Type:    eventlog.TypeSessionInit,
			Session: init.ResponderSession.Pb(),
			Source:  init.Source,
			Kind:    string(init.Kind),
			Detail:  reason,
		}); err != nil {
			return err
		}
		n.sendMsg(func(fromNow int64) {
			n.EventQueue.InsertSessionReject(initiator.id.Pb(), &EventSessionReject{
				Source:  node.id.Pb(),
				Session: init.InitiatorSession,
				Reason:  reason,
			}, fromNow)
		})
		return nil
	}

	fib, err := n.newFiber(node, nil)
	if err != nil {
		return err
	}
	s := &session{
		id:           init.ResponderSession,
		peerID:       init.InitiatorSession,
		kind:         init.Kind,
		node:         node,
		peer:         initiator,
		counterparty: initiator.party,
		owner:        fib,
	}
	node.sessions[s.id] = s
	fib.sessions = append(fib.sessions, s)
	fib.flow = responder.New(s)
	if fib.flow == nil {
		kind := init.Kind
		fib.flow = flow.Func(func(flow.Context) (interface{}, error) {
			return nil, errors.Errorf("responder for %s returned no flow", kind)
		})
	}

	if err := n.record(node, &eventlog.Entry{
		Type:    eventlog.TypeSessionInit,
		RunID:   fib.runID.String(),
		Session: s.id.Pb(),
		Source:  init.Source,
		Kind:    string(init.Kind),
	}); err != nil {
		return err
	}
	return n.runFiber(fib)
}

// wake resumes the owner of s if it is waiting on s.
func (n *Network) wake(s *session) error {
	if s.owner.waitingOn != s {
		return nil
	}
	return n.runFiber(s.owner)
}

func (n *Network) runFiber(fib *fiber) error {
	fib.resume()
	if !fib.done {
		return nil
	}
	return n.finishFiber(fib)
}

func (n *Network) finishFiber(fib *fiber) error {
	node := fib.node
	node.removeFiber(fib)

	var endError string
	outcome := outcomeSuccess
	switch {
	case fib.killed:
		outcome = outcomeKilled
	case fib.err != nil:
		outcome = outcomeFailure
		endError = fib.err.Error()
	}
	n.metrics.FlowsFinished.WithLabelValues(outcome).Inc()

	for _, s := range fib.sessions {
		if s.closed {
			continue
		}
		s.closed = true

		if fib.killed || s.endErr != nil {
			continue
		}
		peer, peerID := s.peer, s.peerID
		n.sendMsg(func(fromNow int64) {
			n.EventQueue.InsertSessionEnd(peer.id.Pb(), &EventSessionEnd{
				Source:  node.id.Pb(),
				Session: peerID,
				Error:   endError,
			}, fromNow)
		})
	}

	if fib.err != nil {
		node.logger.Log(logging.LevelDebug, "flow failed", "run", fib.runID, "err", fib.err)
	} else {
		node.logger.Log(logging.LevelDebug, "flow completed", "run", fib.runID)
	}

	return n.record(node, &eventlog.Entry{
		Type:   eventlog.TypeFlowFinished,
		RunID:  fib.runID.String(),
		Detail: endError,
	})
}

func (n *Network) initiate(fib *fiber, kind flow.Kind, counterparty identity.Party) (flow.Session, error) {
	node := fib.node
	target, ok := n.byName[counterparty.Name]
	if !ok || !target.hasIdentity(counterparty) {
		return nil, errors.WithMessagef(flow.ErrUnknownParty, "cannot initiate %s with %s", kind, counterparty)
	}
	if target == node {
		return nil, flow.ErrSelfSession
	}

	n.lastSessionID++
	initiatorSession := n.lastSessionID
	n.lastSessionID++
	responderSession := n.lastSessionID

	s := &session{
		id:           initiatorSession,
		peerID:       responderSession,
		kind:         kind,
		node:         node,
		peer:         target,
		counterparty: counterparty,
		owner:        fib,
	}
	node.sessions[s.id] = s
	fib.sessions = append(fib.sessions, s)

	n.sendMsg(func(fromNow int64) {
		n.EventQueue.InsertSessionInit(target.id.Pb(), &EventSessionInit{
			Source:           node.id.Pb(),
			Kind:             kind,
			InitiatorSession: initiatorSession,
			ResponderSession: responderSession,
		}, fromNow)
	})
	return s, nil
}

func (n *Network) sendData(s *session, payload *anypb.Any) {
	n.sendMsg(func(fromNow int64) {
		n.EventQueue.InsertSessionData(s.peer.id.Pb(), &EventSessionData{
			Source:  s.node.id.Pb(),
			Session: s.peerID,
			Payload: payload,
		}, fromNow)
	})
}

// sendMsg puts a message on the wire, one link latency from now.
func (n *Network) sendMsg(insert func(fromNow int64)) {
	n.metrics.MessagesSent.Inc()
	insert(int64(types.VirtualDuration(n.config.LinkLatency)))
}

func (n *Network) drop(event *Event, reason string) {
	if event.IsMsg() {
		n.metrics.MessagesDropped.Inc()
	}

	node := n.nodes[int(event.Target)]
	node.logger.Log(logging.LevelDebug, "dropping event", "type", event.TypeName(), "source", event.Source(), "reason", reason)
	if err := n.record(node, &eventlog.Entry{
		Type:   eventlog.TypeDropped,
		Source: event.Source(),
		Kind:   event.TypeName(),
		Detail: reason,
	}); err != nil {
		n.logger.Log(logging.LevelWarn, "could not record dropped event", "err", err)
	}
}

func (n *Network) record(node *Node, entry *eventlog.Entry) error {
	entry.Node = node.id.Pb()
	entry.Time = n.EventQueue.FakeTime

	if n.recorder != nil {
		if err := n.recorder.Intercept(entry); err != nil {
			return errors.WithMessage(err, "could not record event")
		}
	}

	if node.journal != nil && !node.stopped {
		if err := node.journal.Append(entry); err != nil {
			return errors.WithMessagef(err, "could not journal event of node %s", node.party)
		}
	}

	return nil
}

// RunNetwork processes events until the queue is empty, returning the number of steps taken.
// If DrainLimit steps did not suffice, a *DrainLimitError is returned.
func (n *Network) RunNetwork() (count int, err error) {
	if n.stopped {
		return 0, ErrNetworkStopped
	}

	for n.EventQueue.List.Len() > 0 {
		if n.config.DrainLimit > 0 && count >= n.config.DrainLimit {
			return count, &DrainLimitError{
				Limit:   n.config.DrainLimit,
				Pending: n.EventQueue.List.Len(),
				Status:  n.EventQueue.Status(),
			}
		}

		if err := n.Step(); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// StopNode stops a single node. Flows running on it end with ErrNodeStopped
// and messages addressed to it are dropped from now on.
func (n *Network) StopNode(node *Node) error {
	if node.stopped {
		return nil
	}

	var result *multierror.Error
	for len(node.fibers) > 0 {
		fib := node.fibers[0]
		fib.kill()
		if err := n.finishFiber(fib); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := n.record(node, &eventlog.Entry{Type: eventlog.TypeNodeStopped}); err != nil {
		result = multierror.Append(result, err)
	}
	node.stopped = true

	if node.journal != nil {
		if err := node.journal.Sync(); err != nil {
			result = multierror.Append(result, errors.WithMessage(err, "could not sync journal"))
		}
		if err := node.journal.Close(); err != nil {
			result = multierror.Append(result, errors.WithMessage(err, "could not close journal"))
		}
	}

	if node.notaryStore != nil {
		if err := node.notaryStore.Close(); err != nil {
			result = multierror.Append(result, errors.WithMessage(err, "could not close uniqueness store"))
		}
	}

	node.logger.Log(logging.LevelDebug, "node stopped")
	return result.ErrorOrNil()
}

// StopNodes stops every node, even if stopping some of them fails, then the event recorder.
// Stopping a stopped network does nothing.
func (n *Network) StopNodes() error {
	if n.stopped {
		return nil
	}

	var result *multierror.Error
	for _, node := range n.nodes {
		if err := n.StopNode(node); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "could not stop node %s", node.party))
		}
	}

	n.stopped = true
	n.EventQueue.List.Init()
	n.metrics.unregister()

	if n.recorder != nil {
		if err := n.recorder.Stop(); err != nil {
			result = multierror.Append(result, errors.WithMessage(err, "could not stop event recorder"))
		}
	}

	return result.ErrorOrNil()
}
