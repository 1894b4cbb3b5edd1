/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"bytes"
	"container/list"
	"io"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hyperledger-labs/bnsim/pkg/bundle"
	"github.com/hyperledger-labs/bnsim/pkg/eventlog"
	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/identity"
	"github.com/hyperledger-labs/bnsim/pkg/journal"
	"github.com/hyperledger-labs/bnsim/pkg/notary"
)

func newTestQueue() *EventQueue {
	return &EventQueue{
		List: list.New(),
		Rand: rand.New(rand.NewSource(0)),
	}
}

var (
	aliceName  = identity.MustParseName("O=Alice,L=London,C=GB")
	bobName    = identity.MustParseName("O=Bob,L=New York,C=US")
	notaryName = identity.MustParseName("O=Notary,L=London,C=GB")
)

const (
	shoutKind  flow.Kind = "test.Shout"
	silentKind flow.Kind = "test.Silent"
	failKind   flow.Kind = "test.Fail"
)

// shoutResponder answers every string with its upper case form.
var shoutResponder = flow.Responder{
	Kind: shoutKind,
	New: func(session flow.Session) flow.Flow {
		return flow.Func(func(ctx flow.Context) (interface{}, error) {
			msg, err := session.Receive()
			if err != nil {
				return nil, err
			}
			return nil, session.Send(wrapperspb.String(strings.ToUpper(msg.(*wrapperspb.StringValue).Value)))
		})
	},
}

var silentResponder = flow.Responder{
	Kind: silentKind,
	New: func(session flow.Session) flow.Flow {
		return flow.Func(func(ctx flow.Context) (interface{}, error) {
			return nil, nil
		})
	},
}

var failResponder = flow.Responder{
	Kind: failKind,
	New: func(session flow.Session) flow.Flow {
		return flow.Func(func(ctx flow.Context) (interface{}, error) {
			return nil, errors.New("responder refuses")
		})
	},
}

// exchange opens a session of kind with name, sends msg if given, and returns what it receives.
func exchange(kind flow.Kind, name identity.Name, msg proto.Message) flow.Flow {
	return flow.Func(func(ctx flow.Context) (interface{}, error) {
		party, ok := ctx.WellKnownParty(name)
		if !ok {
			return nil, errors.Errorf("no party %s", name)
		}
		session, err := ctx.InitiateFlow(kind, party)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			if err := session.Send(msg); err != nil {
				return nil, err
			}
		}
		reply, err := session.Receive()
		if err != nil {
			return nil, err
		}
		return reply.(*wrapperspb.StringValue).Value, nil
	})
}

var _ = Describe("Network", func() {
	var (
		config  Config
		network *Network
		alice   *Node
		bob     *Node
	)

	setup := func() {
		var err error
		network, err = New(config)
		Expect(err).NotTo(HaveOccurred())

		_, err = network.CreateNotary(NodeParameters{LegalName: notaryName})
		Expect(err).NotTo(HaveOccurred())

		alice, err = network.CreateNode(NodeParameters{LegalName: aliceName})
		Expect(err).NotTo(HaveOccurred())

		bob, err = network.CreateNode(NodeParameters{
			LegalName:  bobName,
			Responders: []flow.Responder{shoutResponder, silentResponder, failResponder},
		})
		Expect(err).NotTo(HaveOccurred())
	}

	run := func(node *Node, f flow.Flow) (interface{}, error) {
		handle, err := network.StartFlow(node, f)
		Expect(err).NotTo(HaveOccurred())
		_, err = network.RunNetwork()
		Expect(err).NotTo(HaveOccurred())
		Expect(network.Quiescent()).To(BeTrue())
		return handle.Result()
	}

	BeforeEach(func() {
		config = Config{Seed: 7}
	})

	JustBeforeEach(setup)

	AfterEach(func() {
		Expect(network.StopNodes()).To(Succeed())
	})

	It("creates nodes with one identity each", func() {
		Expect(network.Nodes()).To(HaveLen(3))
		Expect(network.Notary().IsNotary()).To(BeTrue())
		Expect(alice.ID()).To(BeEquivalentTo(1))

		party, err := alice.Identity()
		Expect(err).NotTo(HaveOccurred())
		Expect(party.Name).To(Equal(aliceName))
		Expect(alice.Identities()).To(Equal([]identity.Party{party}))

		Expect(bob.Responders()).To(Equal([]flow.Kind{failKind, shoutKind, silentKind}))
		Expect(alice.Responders()).To(BeEmpty())
		Expect(network.Notary().Responders()).To(Equal([]flow.Kind{notary.NotariseFlow}))
	})

	It("refuses duplicate names and responder kinds", func() {
		_, err := network.CreateNode(NodeParameters{LegalName: aliceName})
		Expect(err).To(MatchError(ContainSubstring("already exists")))

		_, err = network.CreateNode(NodeParameters{
			LegalName:  identity.MustParseName("O=Carol,L=Paris,C=FR"),
			Responders: []flow.Responder{shoutResponder, shoutResponder},
		})
		Expect(err).To(MatchError("responder for kind test.Shout registered twice"))

		_, err = network.CreateNotary(NodeParameters{LegalName: identity.MustParseName("O=Second Notary,L=Paris,C=FR")})
		Expect(err).To(MatchError(ContainSubstring("already has notary")))

		_, err = network.CreateNode(NodeParameters{LegalName: identity.Name{Organisation: "X", Locality: "Paris", Country: "FR"}})
		Expect(err).To(HaveOccurred())
	})

	It("reports nodes with more than one identity", func() {
		node, err := network.CreateNode(NodeParameters{
			LegalName:            identity.MustParseName("O=Carol,L=Paris,C=FR"),
			AdditionalLegalNames: []identity.Name{identity.MustParseName("O=Carol Confidential,L=Paris,C=FR")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(node.Identities()).To(HaveLen(2))

		_, err = node.Identity()
		Expect(err).To(MatchError(ContainSubstring("has 2 identities")))
	})

	It("does nothing until drained", func() {
		handle, err := network.StartFlow(alice, exchange(shoutKind, bobName, wrapperspb.String("hi")))
		Expect(err).NotTo(HaveOccurred())
		Expect(handle.Done()).To(BeFalse())
		_, err = handle.Result()
		Expect(err).To(Equal(ErrFlowNotComplete))

		count, err := network.RunNetwork()
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(BeNumerically(">", 0))
		Expect(handle.Done()).To(BeTrue())
		Expect(handle.Node()).To(Equal(alice))
	})

	It("exchanges messages over a session", func() {
		result, err := run(alice, exchange(shoutKind, bobName, wrapperspb.String("hello")))
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal("HELLO"))

		// Submission, then two link traversals.
		Expect(network.Now().After(DefaultEpoch.Add(20 * time.Millisecond))).To(BeTrue())
		Expect(testutil.ToFloat64(network.Metrics().MessagesDropped)).To(BeZero())
		Expect(testutil.ToFloat64(network.Metrics().FlowsStarted)).To(Equal(2.0))
		Expect(testutil.ToFloat64(network.Metrics().FlowsFinished.WithLabelValues(outcomeSuccess))).To(Equal(2.0))
		Expect(testutil.ToFloat64(network.Metrics().EventsProcessed.WithLabelValues("SessionInit"))).To(Equal(1.0))
		Expect(alice.ActiveFlows()).To(BeZero())
		Expect(bob.ActiveFlows()).To(BeZero())
	})

	It("reports a counterparty that ended", func() {
		_, err := run(alice, exchange(silentKind, bobName, nil))
		Expect(err).To(Equal(flow.ErrSessionEnded))
	})

	It("reports a counterparty that failed", func() {
		_, err := run(alice, exchange(failKind, bobName, nil))
		counterpartyErr := &flow.CounterpartyError{}
		Expect(errors.As(err, &counterpartyErr)).To(BeTrue())
		Expect(counterpartyErr.Message).To(Equal("responder refuses"))
		Expect(counterpartyErr.Party.Name).To(Equal(bobName))
		Expect(testutil.ToFloat64(network.Metrics().FlowsFinished.WithLabelValues(outcomeFailure))).To(Equal(2.0))
	})

	It("rejects sessions without a responder", func() {
		_, err := run(bob, exchange(shoutKind, aliceName, wrapperspb.String("hi")))
		rejected := &flow.SessionRejectedError{}
		Expect(errors.As(err, &rejected)).To(BeTrue())
		Expect(rejected.Kind).To(Equal(shoutKind))
		Expect(rejected.Party.Name).To(Equal(aliceName))

		// The data sent along with the init found no session.
		Expect(testutil.ToFloat64(network.Metrics().MessagesDropped)).To(Equal(1.0))
	})

	It("refuses sessions with ourselves and with strangers", func() {
		_, err := run(alice, exchange(shoutKind, aliceName, nil))
		Expect(err).To(Equal(flow.ErrSelfSession))

		_, err = run(alice, flow.Func(func(ctx flow.Context) (interface{}, error) {
			return ctx.InitiateFlow(shoutKind, identity.Party{Name: identity.MustParseName("O=Mallory,L=Rome,C=IT")})
		}))
		Expect(errors.Is(err, flow.ErrUnknownParty)).To(BeTrue())
	})

	It("advances virtual time while flows sleep", func() {
		result, err := run(alice, flow.Func(func(ctx flow.Context) (interface{}, error) {
			before := ctx.Now()
			ctx.Sleep(5 * time.Second)
			return ctx.Now().Sub(before), nil
		}))
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(5 * time.Second))
	})

	It("runs sub flows inline", func() {
		result, err := run(alice, flow.Func(func(ctx flow.Context) (interface{}, error) {
			inner, err := ctx.SubFlow(exchange(shoutKind, bobName, wrapperspb.String("sub")))
			if err != nil {
				return nil, err
			}
			return "outer " + inner.(string), nil
		}))
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal("outer SUB"))
	})

	It("turns panics into errors", func() {
		_, err := run(alice, flow.Func(func(ctx flow.Context) (interface{}, error) {
			panic("kaboom")
		}))
		Expect(err).To(MatchError(ContainSubstring("flow panicked: kaboom")))
	})

	It("notarises transactions and refuses double spends", func() {
		input := notary.StateRef{TxID: "issuance", Index: 0}

		signature, err := run(alice, flow.Func(func(ctx flow.Context) (interface{}, error) {
			return notary.Notarise(ctx, "tx1", []notary.StateRef{input})
		}))
		Expect(err).NotTo(HaveOccurred())
		Expect(signature).NotTo(BeEmpty())

		_, err = run(bob, flow.Func(func(ctx flow.Context) (interface{}, error) {
			return notary.Notarise(ctx, "tx2", []notary.StateRef{input})
		}))
		Expect(errors.Is(err, notary.ErrConflict)).To(BeTrue())
	})

	It("starts bundle flows by name", func() {
		_, err := network.StartFlowByName(alice, "Missing", nil)
		Expect(err).To(MatchError(ContainSubstring("no flow named Missing")))
	})

	When("messages are dropped", func() {
		BeforeEach(func() {
			config.Mangler = For(MatchMsgs().OfTypeInit()).Drop()
		})

		It("leaves the flow suspended", func() {
			handle, err := network.StartFlow(alice, exchange(shoutKind, bobName, wrapperspb.String("hi")))
			Expect(err).NotTo(HaveOccurred())
			_, err = network.RunNetwork()
			Expect(err).NotTo(HaveOccurred())

			_, err = handle.Result()
			Expect(err).To(Equal(ErrFlowNotComplete))
			Expect(alice.ActiveFlows()).To(Equal(1))
			// The init, then the data that followed it.
			Expect(testutil.ToFloat64(network.Metrics().MessagesDropped)).To(Equal(2.0))

			Expect(network.StopNodes()).To(Succeed())
			_, err = handle.Result()
			Expect(err).To(Equal(ErrNodeStopped))
			Expect(testutil.ToFloat64(network.Metrics().FlowsFinished.WithLabelValues(outcomeKilled))).To(Equal(1.0))
		})
	})

	When("the drain is limited", func() {
		BeforeEach(func() {
			config.DrainLimit = 10
		})

		It("fails to drain a network that never quiesces", func() {
			_, err := network.StartFlow(alice, flow.Func(func(ctx flow.Context) (interface{}, error) {
				for {
					ctx.Sleep(time.Second)
				}
			}))
			Expect(err).NotTo(HaveOccurred())

			count, err := network.RunNetwork()
			Expect(count).To(Equal(10))
			drainErr := &DrainLimitError{}
			Expect(errors.As(err, &drainErr)).To(BeTrue())
			Expect(drainErr.Pending).To(Equal(1))
			Expect(drainErr.Status).To(ContainSubstring("event_type=FlowResume"))
		})
	})

	When("a node is stopped", func() {
		It("drops the messages sent to it", func() {
			Expect(network.StopNode(bob)).To(Succeed())
			Expect(bob.Stopped()).To(BeTrue())

			handle, err := network.StartFlow(alice, exchange(shoutKind, bobName, nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = network.RunNetwork()
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.Done()).To(BeFalse())
			Expect(testutil.ToFloat64(network.Metrics().MessagesDropped)).To(Equal(1.0))

			_, err = network.StartFlow(bob, silentResponder.New(nil))
			Expect(err).To(Equal(ErrNodeStopped))
		})
	})

	It("can be stopped twice", func() {
		Expect(network.StopNodes()).To(Succeed())
		Expect(network.StopNodes()).To(Succeed())
		Expect(network.Stopped()).To(BeTrue())

		_, err := network.StartFlow(alice, silentResponder.New(nil))
		Expect(err).To(Equal(ErrNetworkStopped))
		_, err = network.RunNetwork()
		Expect(err).To(Equal(ErrNetworkStopped))
	})

	When("recording", func() {
		var output *bytes.Buffer

		BeforeEach(func() {
			output = &bytes.Buffer{}
			config.EventLog = output
		})

		It("writes every event to the log", func() {
			_, err := run(alice, exchange(shoutKind, bobName, wrapperspb.String("hi")))
			Expect(err).NotTo(HaveOccurred())
			Expect(network.StopNodes()).To(Succeed())

			reader, err := eventlog.NewReader(output)
			Expect(err).NotTo(HaveOccurred())

			var types []eventlog.Type
			for {
				entry, err := reader.ReadEntry()
				if err == io.EOF {
					break
				}
				Expect(err).NotTo(HaveOccurred())
				types = append(types, entry.Type)
			}

			Expect(types[:3]).To(Equal([]eventlog.Type{eventlog.TypeNodeCreated, eventlog.TypeNodeCreated, eventlog.TypeNodeCreated}))
			Expect(types).To(ContainElement(eventlog.TypeSessionInit))
			Expect(types).To(ContainElement(eventlog.TypeSessionData))
			Expect(types).To(ContainElement(eventlog.TypeFlowFinished))
			Expect(types[len(types)-1]).To(Equal(eventlog.TypeNodeStopped))
		})
	})

	When("given a directory", func() {
		var dir string

		BeforeEach(func() {
			var err error
			dir, err = ioutil.TempDir("", "simnet")
			Expect(err).NotTo(HaveOccurred())
			config.Directory = dir
		})

		AfterEach(func() {
			os.RemoveAll(dir)
		})

		It("journals the events of every node", func() {
			_, err := run(alice, exchange(shoutKind, bobName, wrapperspb.String("hi")))
			Expect(err).NotTo(HaveOccurred())
			Expect(network.StopNodes()).To(Succeed())

			Expect(filepath.Dir(network.Directory())).To(Equal(dir))
			j, err := journal.Open(filepath.Join(network.Directory(), "2", "journal"))
			Expect(err).NotTo(HaveOccurred())
			defer j.Close()

			var entries []*eventlog.Entry
			Expect(j.LoadAll(func(_ uint64, e *eventlog.Entry) {
				entries = append(entries, e)
			})).To(Succeed())
			Expect(entries[0].Type).To(Equal(eventlog.TypeNodeCreated))
			Expect(entries[0].Detail).To(Equal(bobName.String()))
			for _, e := range entries {
				Expect(e.Node).To(Equal(uint64(2)))
			}
		})

		It("gives every network its own notary database", func() {
			_, err := run(alice, flow.Func(func(ctx flow.Context) (interface{}, error) {
				return notary.Notarise(ctx, "move-1", []notary.StateRef{{TxID: "issue"}})
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(network.StopNodes()).To(Succeed())
			first := network.Directory()

			setup()
			Expect(network.Directory()).NotTo(Equal(first))
			_, err = run(alice, flow.Func(func(ctx flow.Context) (interface{}, error) {
				return notary.Notarise(ctx, "move-2", []notary.StateRef{{TxID: "issue"}})
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(network.StopNodes()).To(Succeed())
		})

		It("stops the other nodes when one of them fails to stop", func() {
			Expect(alice.journal.Close()).To(Succeed())

			err := network.StopNodes()
			Expect(err).To(HaveOccurred())
			merr, ok := err.(*multierror.Error)
			Expect(ok).To(BeTrue())
			Expect(merr.Errors).To(HaveLen(1))
			Expect(merr.Errors[0]).To(MatchError(ContainSubstring("could not stop node " + aliceName.String())))

			for _, node := range network.Nodes() {
				Expect(node.Stopped()).To(BeTrue())
			}
			Expect(network.Stopped()).To(BeTrue())
		})
	})
})

var _ = Describe("Metrics", func() {
	It("can be registered again once the network is stopped", func() {
		registry := prometheus.NewRegistry()
		for i := 0; i < 2; i++ {
			network, err := New(Config{Registerer: registry})
			Expect(err).NotTo(HaveOccurred())
			families, err := registry.Gather()
			Expect(err).NotTo(HaveOccurred())
			Expect(families).NotTo(BeEmpty())
			Expect(network.StopNodes()).To(Succeed())
		}

		families, err := registry.Gather()
		Expect(err).NotTo(HaveOccurred())
		Expect(families).To(BeEmpty())
	})

	It("refuses a registerer already holding the collectors of a running network", func() {
		registry := prometheus.NewRegistry()
		network, err := New(Config{Registerer: registry})
		Expect(err).NotTo(HaveOccurred())
		defer network.StopNodes()

		_, err = New(Config{Registerer: registry})
		Expect(err).To(MatchError(ContainSubstring("could not register network metrics")))
	})
})

var _ = Describe("Determinism", func() {
	runOnce := func() (identity.Party, string) {
		network, err := New(Config{Seed: 99})
		Expect(err).NotTo(HaveOccurred())
		defer network.StopNodes()

		node, err := network.CreateNode(NodeParameters{LegalName: aliceName})
		Expect(err).NotTo(HaveOccurred())
		handle, err := network.StartFlow(node, silentResponder.New(nil))
		Expect(err).NotTo(HaveOccurred())

		party, err := node.Identity()
		Expect(err).NotTo(HaveOccurred())
		return party, handle.RunID().String()
	}

	It("derives keys and run ids from the seed", func() {
		party1, run1 := runOnce()
		party2, run2 := runOnce()
		Expect(party1.Equal(party2)).To(BeTrue())
		Expect(run1).To(Equal(run2))
	})
})

var _ = Describe("New", func() {
	It("fails on unknown bundles", func() {
		_, err := New(Config{Bundles: []string{"unknown"}, Registry: bundle.NewRegistry()})
		Expect(err).To(MatchError("could not load bundles: bundle unknown cannot be resolved"))
	})

	It("fails on a negative drain limit", func() {
		_, err := New(Config{DrainLimit: -1})
		Expect(err).To(HaveOccurred())
	})
})
