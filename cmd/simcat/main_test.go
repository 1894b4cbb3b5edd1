/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/bnsim/pkg/eventlog"
	"github.com/hyperledger-labs/bnsim/pkg/journal"
)

var recorded = []*eventlog.Entry{
	{Node: 0, Time: 0, Type: eventlog.TypeNodeCreated, Detail: "O=Notary,L=London,C=GB"},
	{Node: 1, Time: 0, Type: eventlog.TypeNodeCreated, Detail: "O=BNO_0,L=New York,C=US"},
	{Node: 1, Time: 1, Type: eventlog.TypeFlowStarted, RunID: "run-a"},
	{Node: 0, Time: 11, Type: eventlog.TypeSessionInit, Session: 2, Source: 1, Kind: "notary.NotariseFlow"},
	{Node: 0, Time: 11, Type: eventlog.TypeSessionData, Session: 2, Source: 1, Payload: "google.protobuf.Struct"},
	{Node: 1, Time: 21, Type: eventlog.TypeSessionData, Session: 1, Source: 0, Payload: "google.protobuf.Struct"},
	{Node: 1, Time: 21, Type: eventlog.TypeFlowFinished, RunID: "run-a", Detail: "success"},
}

var _ = Describe("Parsing", func() {
	It("parses a fully populated command line", func() {
		args, err := parseArgs([]string{
			"--input", "main.go",
			"--node", "1",
			"--node", "2",
			"--type", "SessionInit",
			"--type", "FlowStarted",
			"--kind", "notary.NotariseFlow",
			"--run", "run-a",
			"--summary",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(args.input).NotTo(BeNil())
		Expect(args.input.Close()).NotTo(HaveOccurred())
		Expect(args.nodeIDs).To(Equal([]uint64{1, 2}))
		Expect(args.types).To(Equal([]string{"SessionInit", "FlowStarted"}))
		Expect(args.kinds).To(Equal([]string{"notary.NotariseFlow"}))
		Expect(args.runID).To(Equal("run-a"))
		Expect(args.summary).To(BeTrue())
	})

	When("both type includes and type excludes are present", func() {
		It("returns an error", func() {
			_, err := parseArgs([]string{
				"--type", "SessionInit",
				"--notType", "SessionData",
			})
			Expect(err).To(MatchError("cannot set both --type and --notType"))
		})
	})

	When("quiet is set without summary", func() {
		It("returns an error", func() {
			_, err := parseArgs([]string{"--quiet"})
			Expect(err).To(MatchError("cannot be quiet without --summary"))
		})
	})

	When("an unknown event type is given", func() {
		It("returns an error", func() {
			_, err := parseArgs([]string{"--type", "Tick"})
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Execution", func() {
	var (
		output *bytes.Buffer
		args   *arguments
	)

	BeforeEach(func() {
		logBytes := &bytes.Buffer{}
		recorder := eventlog.NewRecorder(logBytes)
		for _, entry := range recorded {
			Expect(recorder.Intercept(entry)).To(Succeed())
		}
		Expect(recorder.Stop()).To(Succeed())

		output = &bytes.Buffer{}
		args = &arguments{
			input: ioutil.NopCloser(logBytes),
		}
	})

	It("prints every entry", func() {
		Expect(args.execute(output)).To(Succeed())
		Expect(output.String()).To(ContainSubstring("     1 [t=0 node=0] NodeCreated detail=\"O=Notary,L=London,C=GB\"\n"))
		Expect(output.String()).To(ContainSubstring("     4 [t=11 node=0] SessionInit session=2 source=1 kind=notary.NotariseFlow\n"))
		Expect(output.String()).To(ContainSubstring("     7 [t=21 node=1] FlowFinished run=run-a detail=\"success\"\n"))
		Expect(bytes.Count(output.Bytes(), []byte("\n"))).To(Equal(len(recorded)))
	})

	It("filters by node and type", func() {
		args.nodeIDs = []uint64{1}
		args.notTypes = []string{"NodeCreated"}
		Expect(args.execute(output)).To(Succeed())
		Expect(output.String()).To(Equal("" +
			"     3 [t=1 node=1] FlowStarted run=run-a\n" +
			"     6 [t=21 node=1] SessionData session=1 source=0 payload=google.protobuf.Struct\n" +
			"     7 [t=21 node=1] FlowFinished run=run-a detail=\"success\"\n"))
	})

	It("filters by kind", func() {
		args.kinds = []string{"notary.NotariseFlow"}
		Expect(args.execute(output)).To(Succeed())
		Expect(output.String()).To(Equal("     4 [t=11 node=0] SessionInit session=2 source=1 kind=notary.NotariseFlow\n"))
	})

	It("summarizes", func() {
		args.summary = true
		args.quietRows = true
		args.runID = ""
		Expect(args.execute(output)).To(Succeed())
		Expect(output.String()).To(Equal("" +
			"node 0: NodeCreated=1 SessionInit=1 SessionData=1\n" +
			"node 1: NodeCreated=1 FlowStarted=1 FlowFinished=1 SessionData=1\n"))
	})

	It("reads journals", func() {
		dir, err := ioutil.TempDir("", "simcat")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "journal")
		j, err := journal.Open(path)
		Expect(err).NotTo(HaveOccurred())
		for _, entry := range recorded[1:3] {
			Expect(j.Append(entry)).To(Succeed())
		}
		Expect(j.Close()).To(Succeed())

		args = &arguments{journal: path}
		Expect(args.execute(output)).To(Succeed())
		Expect(output.String()).To(Equal("" +
			"     1 [t=0 node=1] NodeCreated detail=\"O=BNO_0,L=New York,C=US\"\n" +
			"     2 [t=1 node=1] FlowStarted run=run-a\n"))
	})

	It("refuses a journal directory that does not exist", func() {
		dir, err := ioutil.TempDir("", "simcat")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "missing")
		args = &arguments{journal: path}
		Expect(args.execute(output)).To(MatchError(ContainSubstring("bad journal directory")))
		_, err = os.Stat(path)
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("fails on input that is not an event log", func() {
		args.input = ioutil.NopCloser(bytes.NewBufferString("plain text"))
		Expect(args.execute(output)).To(MatchError(ContainSubstring("bad input file")))
	})
})
