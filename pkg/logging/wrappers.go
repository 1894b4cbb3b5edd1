/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import "sync"

type decoratedLogger struct {
	logger Logger
	prefix string
	args   []interface{}
}

// Decorate returns a Logger that prefixes every message with prefix and
// prepends args to the key/value pairs of every message.
func Decorate(logger Logger, prefix string, args ...interface{}) Logger {
	return &decoratedLogger{
		logger: logger,
		prefix: prefix,
		args:   args,
	}
}

func (dl *decoratedLogger) Log(level LogLevel, text string, args ...interface{}) {
	// Never append to dl.args directly, it is shared by every call.
	merged := make([]interface{}, 0, len(dl.args)+len(args))
	merged = append(merged, dl.args...)
	merged = append(merged, args...)
	dl.logger.Log(level, dl.prefix+text, merged...)
}

type synchronizedLogger struct {
	mutex  sync.Mutex
	logger Logger
}

// Synchronize serializes the calls to logger, for loggers shared with
// goroutines the caller does not control.
func Synchronize(logger Logger) Logger {
	if _, ok := logger.(*synchronizedLogger); ok {
		return logger
	}
	return &synchronizedLogger{logger: logger}
}

func (sl *synchronizedLogger) Log(level LogLevel, text string, args ...interface{}) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	sl.logger.Log(level, text, args...)
}
