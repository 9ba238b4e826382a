// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error by the precondition it violates.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound covers missing nodes and codes that are unknown, redeemed or revoked.
	KindNotFound
	// KindConflict covers duplicate roots, duplicate memberships and duplicate active codes.
	KindConflict
	// KindForbidden covers recruiting through a blocked node.
	KindForbidden
	// KindTransientStore covers storage contention and timeouts; the whole unit of work is safe to retry.
	KindTransientStore
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindTransientStore:
		return "transient store error"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the hierarchy engine.
// errors.Is matches any two errors of the same Kind, so callers compare
// against the sentinels below.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrForbidden      = &Error{Kind: KindForbidden}
	ErrTransientStore = &Error{Kind: KindTransientStore}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return newf(KindNotFound, nil, format, args...)
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) error {
	return newf(KindConflict, nil, format, args...)
}

// Forbidden returns a KindForbidden error.
func Forbidden(format string, args ...any) error {
	return newf(KindForbidden, nil, format, args...)
}

// Transient wraps a storage error as KindTransientStore.
func Transient(err error, format string, args ...any) error {
	return newf(KindTransientStore, err, format, args...)
}

// Wrap attaches kind to err, keeping err in the chain.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return newf(kind, err, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is a KindTransientStore error.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransientStore
}
