// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package corelog provides a thin wrapper around zerolog.Logger used by the
// key-bundle and keys-registry packages to report recoverable, non-fatal
// conditions (see spec.md §7's "the core never aborts the process" policy).
//
// The Logger type embeds zerolog.Logger so all standard zerolog methods
// (Debug, Info, Warn, Error, etc.) are available directly on *Logger. This
// core never writes to files or HTTP responses, so unlike a server-side
// logger it has no request-scoped helpers: it is constructed once per
// component and held in a package-level variable.
package corelog

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New constructs a *Logger tagged with a "component" field (e.g. "keys",
// "account"), writing JSON to os.Stdout at debug level. Debug level is used
// throughout this core for exactly the conditions the specification flags
// as surprising-but-intentional (see §9 of the account spec). Debug entries
// are written by default, so an embedder can see why an operation silently
// returned an absent value; raising zerolog's global level silences them.
func New(component string) *Logger {
	logger := zerolog.New(os.Stdout).With().
		Str("component", component).
		Timestamp().
		Logger()
	return &Logger{logger}
}

// Nop returns a *Logger that discards all output, for use in tests.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}
