/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errs implements the stable error taxonomy used across the
// recommendation and booking engine. Codes are transport-independent;
// the HTTP layer maps them to status codes at the edge.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, transport-independent error classification.
type Code string

const (
	NotFound       Code = "NotFound"
	InvalidRequest Code = "InvalidRequest"
	Conflict       Code = "Conflict"
	Degraded       Code = "Degraded"
	Transient      Code = "Transient"
	Fatal          Code = "Fatal"
)

// Error wraps an underlying cause with a stable code, an optional
// rule-violation reason (spec §7: "every rejected assignment is
// accompanied by a stable reason string"), and arbitrary key/value
// context for logging.
type Error struct {
	Code   Code
	Reason string
	Err    error
	KVs    []any
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with a reason string and optional key/value pairs.
func New(code Code, reason string, kvs ...any) *Error {
	return &Error{Code: code, Reason: reason, KVs: kvs}
}

// Wrap attaches a code to an existing error, preserving it for errors.As/Is.
func Wrap(code Code, err error, kvs ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err, KVs: kvs}
}

// CodeOf extracts the taxonomy code from err, defaulting to Fatal for
// errors that never went through this package — an unclassified error is
// treated as the worst case rather than silently surfaced as a 200.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Fatal
}

// ReasonOf extracts the human-readable rule-violation reason, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
