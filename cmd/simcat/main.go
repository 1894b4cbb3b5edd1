/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// simcat is a utility for reviewing the event logs of simulated networks.
// It understands the format written by github.com/hyperledger-labs/bnsim/pkg/eventlog
// and the per-node journals kept under a network directory, and is able to
// filter and summarize them.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/hyperledger-labs/bnsim/pkg/eventlog"
	"github.com/hyperledger-labs/bnsim/pkg/journal"
)

var allEventTypes = func() []string {
	types := make([]string, len(eventlog.AllTypes))
	for i, t := range eventlog.AllTypes {
		types[i] = string(t)
	}
	return types
}()

// excludeByType is used for --type/--notType. The assumption is that
// at least one of include or exclude is nil.
func excludeByType(value string, include []string, exclude []string) bool {
	if include != nil {
		for _, includeName := range include {
			if includeName == value {
				return false
			}
		}

		return true
	}

	for _, excludeName := range exclude {
		if excludeName == value {
			return true
		}
	}

	return false
}

type arguments struct {
	input     io.ReadCloser
	journal   string
	nodeIDs   []uint64
	types     []string
	notTypes  []string
	kinds     []string
	runID     string
	summary   bool
	quietRows bool
}

func (a *arguments) shouldPrint(entry *eventlog.Entry) bool {
	if a.nodeIDs != nil {
		found := false
		for _, nodeID := range a.nodeIDs {
			if nodeID == entry.Node {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if excludeByType(string(entry.Type), a.types, a.notTypes) {
		return false
	}

	if a.kinds != nil && (entry.Kind == "" || excludeByType(entry.Kind, a.kinds, nil)) {
		return false
	}

	if a.runID != "" && entry.RunID != a.runID {
		return false
	}

	return true
}

func formatEntry(index uint64, entry *eventlog.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "% 6d [t=%d node=%d] %s", index, entry.Time, entry.Node, entry.Type)
	if entry.RunID != "" {
		fmt.Fprintf(&b, " run=%s", entry.RunID)
	}
	if entry.Session != 0 {
		fmt.Fprintf(&b, " session=%d", entry.Session)
	}
	switch entry.Type {
	case eventlog.TypeSessionInit, eventlog.TypeSessionData, eventlog.TypeSessionEnd, eventlog.TypeSessionReject, eventlog.TypeDropped:
		fmt.Fprintf(&b, " source=%d", entry.Source)
	}
	if entry.Kind != "" {
		fmt.Fprintf(&b, " kind=%s", entry.Kind)
	}
	if entry.Payload != "" {
		fmt.Fprintf(&b, " payload=%s", entry.Payload)
	}
	if entry.Detail != "" {
		fmt.Fprintf(&b, " detail=%q", entry.Detail)
	}
	return b.String()
}

// summary counts the printed entries per node and type.
type summary struct {
	counts map[uint64]map[eventlog.Type]int
}

func (s *summary) add(entry *eventlog.Entry) {
	if s.counts == nil {
		s.counts = map[uint64]map[eventlog.Type]int{}
	}
	byType, ok := s.counts[entry.Node]
	if !ok {
		byType = map[eventlog.Type]int{}
		s.counts[entry.Node] = byType
	}
	byType[entry.Type]++
}

func (s *summary) print(output io.Writer) {
	nodeIDs := make([]uint64, 0, len(s.counts))
	for nodeID := range s.counts {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Slice(nodeIDs, func(i, j int) bool {
		return nodeIDs[i] < nodeIDs[j]
	})

	for _, nodeID := range nodeIDs {
		fmt.Fprintf(output, "node %d:", nodeID)
		for _, t := range eventlog.AllTypes {
			if count := s.counts[nodeID][t]; count > 0 {
				fmt.Fprintf(output, " %s=%d", t, count)
			}
		}
		fmt.Fprint(output, "\n")
	}
}

// entries calls fn with every entry of the input, numbered from 1.
func (a *arguments) entries(fn func(index uint64, entry *eventlog.Entry) error) error {
	if a.journal != "" {
		// Opening creates missing directories, which a reader must never do.
		if _, err := os.Stat(a.journal); err != nil {
			return errors.WithMessage(err, "bad journal directory")
		}
		j, err := journal.Open(a.journal)
		if err != nil {
			return errors.WithMessage(err, "bad journal directory")
		}
		defer j.Close()

		var fnErr error
		err = j.LoadAll(func(index uint64, entry *eventlog.Entry) {
			if fnErr == nil {
				fnErr = fn(index+1, entry)
			}
		})
		if err != nil {
			return errors.WithMessage(err, "failed reading journal")
		}
		return fnErr
	}

	defer a.input.Close()

	reader, err := eventlog.NewReader(a.input)
	if err != nil {
		return errors.WithMessage(err, "bad input file")
	}

	// The log does not keep track of indices.
	index := uint64(0)
	for entry, err := reader.ReadEntry(); err != io.EOF; entry, err = reader.ReadEntry() {
		if err != nil {
			return errors.WithMessage(err, "failed reading input")
		}
		index++
		if err := fn(index, entry); err != nil {
			return err
		}
	}
	return nil
}

func (a *arguments) execute(output io.Writer) error {
	s := &summary{}

	err := a.entries(func(index uint64, entry *eventlog.Entry) error {
		if !a.shouldPrint(entry) {
			return nil
		}
		s.add(entry)
		if !a.quietRows {
			_, err := fmt.Fprintln(output, formatEntry(index, entry))
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if a.summary {
		s.print(output)
	}
	return nil
}

func parseArgs(args []string) (*arguments, error) {
	app := kingpin.New("simcat", "Utility for processing simulated network event logs.")
	inputPath := app.Flag("input", "The event log to read (defaults to stdin).").ExistingFile()
	journalDir := app.Flag("journal", "Read the journal in this directory instead of an event log.").ExistingDir()
	nodeIDs := app.Flag("node", "Report events of this node only, may be repeated.").Uint64List()
	types := app.Flag("type", "Which event types to report.").Enums(allEventTypes...)
	notTypes := app.Flag("notType", "Which event types to exclude. (Cannot combine with --type)").Enums(allEventTypes...)
	kinds := app.Flag("kind", "Report session events of this flow kind only, may be repeated.").Strings()
	runID := app.Flag("run", "Report events of this flow run only.").String()
	printSummary := app.Flag("summary", "Print the number of reported events per node and type.").Default("false").Bool()
	quiet := app.Flag("quiet", "Do not print the events themselves. (Must combine with --summary)").Default("false").Bool()

	_, err := app.Parse(args)
	if err != nil {
		return nil, err
	}

	switch {
	case *types != nil && *notTypes != nil:
		return nil, errors.Errorf("cannot set both --type and --notType")
	case *quiet && !*printSummary:
		return nil, errors.Errorf("cannot be quiet without --summary")
	case *journalDir != "" && *inputPath != "":
		return nil, errors.Errorf("cannot set both --input and --journal")
	}

	var input io.ReadCloser
	switch {
	case *inputPath != "":
		input, err = os.Open(*inputPath)
		if err != nil {
			return nil, errors.WithMessage(err, "could not open input")
		}
	case *journalDir == "":
		input = os.Stdin
	}

	return &arguments{
		input:     input,
		journal:   *journalDir,
		nodeIDs:   *nodeIDs,
		types:     *types,
		notTypes:  *notTypes,
		kinds:     *kinds,
		runID:     *runID,
		summary:   *printSummary,
		quietRows: *quiet,
	}, nil
}

func main() {
	kingpin.Version("0.0.1")
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("failed to parse arguments, %s, try --help", err)
	}
	err = args.execute(os.Stdout)
	if err != nil {
		fmt.Println("")
		kingpin.Fatalf("%s", err)
	}
}
