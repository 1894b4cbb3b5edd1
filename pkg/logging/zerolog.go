/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger returns a Logger writing through logger.
// Key/value pairs become fields of the zerolog event; byte slices are hex encoded.
func NewZerologLogger(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger}
}

// NewJSONLogger writes one JSON object per message at level or above to output.
func NewJSONLogger(output io.Writer, level LogLevel) Logger {
	return NewZerologLogger(zerolog.New(output).Level(zerologLevel(level)))
}

// NewPrettyLogger writes human readable, uncolored lines at level or above to output.
func NewPrettyLogger(output io.Writer, level LogLevel) Logger {
	writer := zerolog.ConsoleWriter{Out: output, NoColor: true, TimeFormat: "15:04:05.000"}
	return NewZerologLogger(zerolog.New(writer).Level(zerologLevel(level)).With().Timestamp().Logger())
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (zl *zerologLogger) Log(level LogLevel, text string, args ...interface{}) {
	event := zl.logger.WithLevel(zerologLevel(level))
	if event == nil {
		return
	}

	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 == len(args) {
			event = event.Str(key, "%MISSING%")
			break
		}
		switch value := args[i+1].(type) {
		case []byte:
			event = event.Hex(key, value)
		case error:
			event = event.AnErr(key, value)
		case fmt.Stringer:
			event = event.Stringer(key, value)
		default:
			event = event.Interface(key, value)
		}
	}

	event.Msg(text)
}
