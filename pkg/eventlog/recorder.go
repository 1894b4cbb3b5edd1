/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package eventlog

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

type RecorderOpt interface{}

type compressionLevelOpt int

// DefaultCompressionLevel is used for event capture when not overridden.
const DefaultCompressionLevel = gzip.DefaultCompression

// CompressionLevelOpt takes any of the compression levels supported
// by the golang standard gzip package.
func CompressionLevelOpt(level int) RecorderOpt {
	return compressionLevelOpt(level)
}

// DefaultBufferSize is the number of unwritten entries which
// may be held in queue before blocking.
const DefaultBufferSize = 5000

type bufferSizeOpt int

// BufferSizeOpt overrides the default buffer size of the
// recorder buffer.  Once the buffer overflows, the network
// is blocked from processing new events until the buffer has room.
func BufferSizeOpt(size int) RecorderOpt {
	return bufferSizeOpt(size)
}

// Recorder receives entries, serializes them, compresses them, and writes them to a stream.
type Recorder struct {
	compressionLevel int
	entryC           chan *Entry
	doneC            chan struct{}
	exitC            chan struct{}

	exitErr      error
	exitErrMutex sync.Mutex
}

// NewRecorder starts a recorder writing to dest.
// Stop must be called to flush the stream and release the recorder's goroutine.
func NewRecorder(dest io.Writer, opts ...RecorderOpt) *Recorder {
	r := &Recorder{
		compressionLevel: DefaultCompressionLevel,
		entryC:           make(chan *Entry, DefaultBufferSize),
		doneC:            make(chan struct{}),
		exitC:            make(chan struct{}),
	}

	for _, opt := range opts {
		switch v := opt.(type) {
		case compressionLevelOpt:
			r.compressionLevel = int(v)
		case bufferSizeOpt:
			r.entryC = make(chan *Entry, v)
		}
	}

	go r.run(dest)

	return r
}

// Intercept takes an entry and enqueues it into the buffer.
// If there is no room in the buffer, it blocks.  If draining the buffer
// to the output stream has completed (successfully or otherwise), Intercept
// returns an error.
func (r *Recorder) Intercept(entry *Entry) error {
	select {
	case r.entryC <- entry:
		return nil
	case <-r.exitC:
		r.exitErrMutex.Lock()
		defer r.exitErrMutex.Unlock()
		return r.exitErr
	}
}

// Stop flushes all buffered entries and closes the gzip stream.
// It must be called only once, after the last call to Intercept.
func (r *Recorder) Stop() error {
	close(r.doneC)
	<-r.exitC
	r.exitErrMutex.Lock()
	defer r.exitErrMutex.Unlock()
	if r.exitErr == errStopped {
		return nil
	}
	return r.exitErr
}

var errStopped = fmt.Errorf("recorder stopped at caller request")

func (r *Recorder) run(dest io.Writer) (exitErr error) {
	defer func() {
		r.exitErrMutex.Lock()
		r.exitErr = exitErr
		r.exitErrMutex.Unlock()
		close(r.exitC)
	}()

	gzWriter, err := gzip.NewWriterLevel(dest, r.compressionLevel)
	if err != nil {
		return errors.WithMessage(err, "could not create gzip stream")
	}
	defer func() {
		if err := gzWriter.Close(); err != nil && exitErr == errStopped {
			exitErr = errors.WithMessage(err, "could not flush gzip stream")
		}
	}()

	for {
		select {
		case <-r.doneC:
			for {
				select {
				case entry := <-r.entryC:
					if err := WriteEntry(gzWriter, entry); err != nil {
						return errors.WithMessage(err, "error serializing to stream")
					}
				default:
					return errStopped
				}
			}
		case entry := <-r.entryC:
			if err := WriteEntry(gzWriter, entry); err != nil {
				return errors.WithMessage(err, "error serializing to stream")
			}
		}
	}
}

// WriteEntry writes one size-prefixed entry to writer, without compression.
func WriteEntry(writer io.Writer, entry *Entry) error {
	return writeSizePrefixedProto(writer, entry.Proto())
}

func writeSizePrefixedProto(dest io.Writer, msg proto.Message) error {
	msgBytes, err := proto.Marshal(msg)
	if err != nil {
		return errors.WithMessage(err, "could not marshal")
	}

	lenBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(lenBuf, int64(len(msgBytes)))
	if _, err = dest.Write(lenBuf[:n]); err != nil {
		return errors.WithMessage(err, "could not write length prefix")
	}

	if _, err = dest.Write(msgBytes); err != nil {
		return errors.WithMessage(err, "could not write message")
	}

	return nil
}
