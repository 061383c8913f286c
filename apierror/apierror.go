// Copyright 2026 TreasuryKit
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apierror defines the typed error kinds shared by the lifecycle
// manager, the chain orchestrator, and the HTTP surface. Every operation
// failure is one of these kinds so callers can tell invalid input apart
// from missing entities and from external service failures.
package apierror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindValidation indicates caller input failed a precondition.
	KindValidation Kind = iota
	// KindNotFound indicates no entity exists at the given key or address.
	KindNotFound
	// KindForbidden indicates the caller identity check failed.
	KindForbidden
	// KindExternalService indicates the external call failed at the
	// transport level or returned a structured error payload.
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindExternalService:
		return "external service"
	default:
		return "unknown"
	}
}

// Error is a typed operation failure. The message of an external service
// error preserves the external system's error text verbatim.
type Error struct {
	wrapped error
	message string
	kind    Kind
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

func (e *Error) Kind() Kind {
	return e.kind
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Validation(format string, args ...any) *Error {
	return &Error{kind: KindValidation, message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{kind: KindNotFound, message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{kind: KindForbidden, message: fmt.Sprintf(format, args...)}
}

// ExternalService wraps a failure from the governance or ledger service.
// The message is passed through unmodified so callers can distinguish a
// rejection from an unreachable service.
func ExternalService(message string) *Error {
	return &Error{kind: KindExternalService, message: message}
}

// WrapExternal preserves err as the cause while reporting its message.
func WrapExternal(err error) *Error {
	return &Error{
		kind:    KindExternalService,
		message: err.Error(),
		wrapped: err,
	}
}

// HasKind reports whether err is (or wraps) an Error of the given kind.
func HasKind(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind() == kind
	}
	return false
}

func IsValidation(err error) bool {
	return HasKind(err, KindValidation)
}

func IsNotFound(err error) bool {
	return HasKind(err, KindNotFound)
}

func IsForbidden(err error) bool {
	return HasKind(err, KindForbidden)
}

func IsExternalService(err error) bool {
	return HasKind(err, KindExternalService)
}
