/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package errors defines the error taxonomy shared by the spawner components.
package errors

import (
	"errors"
	"fmt"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
)

// Kind classifies an error by how callers should react to it
type Kind string

const (
	// KindConfiguration is a missing or invalid operator setting. Fatal.
	KindConfiguration Kind = "CONFIGURATION"
	// KindNotFound is a referenced template or cluster that does not exist
	KindNotFound Kind = "NOT_FOUND"
	// KindParse is a template that could not be parsed
	KindParse Kind = "PARSE"
	// KindValidation is a request that breaks a platform rule. Never retried.
	KindValidation Kind = "VALIDATION"
	// KindConflict is a race with a pending deletion. Retryable by the user.
	KindConflict Kind = "CONFLICT"
	// KindQuota is a quota or permission error at creation time
	KindQuota Kind = "QUOTA"
	// KindRateLimit is a rate-limit error at creation time
	KindRateLimit Kind = "RATE_LIMIT"
	// KindRemoteAPI is any other control-plane failure
	KindRemoteAPI Kind = "REMOTE_API"
	// KindUnknownComponent is an optional component name outside the enumeration
	KindUnknownComponent Kind = "UNKNOWN_COMPONENT"
)

// Error is a classified error with a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Message == ""
	}
	return false
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with an added message. A nil err stays nil.
func Wrap(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Sentinels usable with errors.Is
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrParse            = &Error{Kind: KindParse}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrQuota            = &Error{Kind: KindQuota}
	ErrRateLimit        = &Error{Kind: KindRateLimit}
	ErrRemoteAPI        = &Error{Kind: KindRemoteAPI}
	ErrUnknownComponent = &Error{Kind: KindUnknownComponent}
)

// KindOf returns the kind of the first classified error in the chain.
// Unclassified errors report KindRemoteAPI.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var uc *v1alpha1.UnknownComponentError
	if errors.As(err, &uc) {
		return KindUnknownComponent
	}
	return KindRemoteAPI
}

// IsNotFound returns true for a missing template or cluster
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsConflict returns true for a pending-deletion race
func IsConflict(err error) bool {
	return err != nil && KindOf(err) == KindConflict
}

// IsValidation returns true for a request that breaks a platform rule
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsConfiguration returns true for a missing operator setting
func IsConfiguration(err error) bool {
	return err != nil && KindOf(err) == KindConfiguration
}

// IsRetryableCreate returns true for the transient creation errors that are
// retried in another zone
func IsRetryableCreate(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindQuota, KindRateLimit:
		return true
	default:
		return false
	}
}
