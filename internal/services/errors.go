package services

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable discriminant of a generation failure.
type ErrorKind string

const (
	KindUpstreamTimeout     ErrorKind = "UPSTREAM_TIMEOUT"
	KindUpstreamRateLimited ErrorKind = "UPSTREAM_RATE_LIMITED"
	KindUpstreamConfig      ErrorKind = "UPSTREAM_CONFIG_ERROR"
	KindUpstream            ErrorKind = "UPSTREAM_ERROR"
	KindMalformedRequest    ErrorKind = "MALFORMED_REQUEST"
	KindInternal            ErrorKind = "INTERNAL_ERROR"
)

// UpstreamError is returned by the completion client for every failed call.
type UpstreamError struct {
	Kind    ErrorKind
	Message string // upstream-provided message, if any
	Err     error
}

func (e *UpstreamError) Error() string {
	var base string
	switch e.Kind {
	case KindUpstreamTimeout:
		base = "AI service timed out. Please try again."
	case KindUpstreamRateLimited:
		base = "AI service is busy, please try again in a moment."
	case KindUpstreamConfig:
		base = "AI service configuration error. Please contact support."
	case KindMalformedRequest:
		base = "malformed request"
	default:
		base = "AI service error"
	}
	if e.Message == "" {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func newUpstreamError(kind ErrorKind, message string, err error) *UpstreamError {
	return &UpstreamError{Kind: kind, Message: message, Err: err}
}

// MalformedRequestError wraps a queue item that could not be decoded or validated.
func MalformedRequestError(err error) *UpstreamError {
	return &UpstreamError{Kind: KindMalformedRequest, Message: err.Error(), Err: err}
}

// KindOf returns the error kind of err, or KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindMalformedRequest
	}
	return KindInternal
}

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "Validation error"
	}
	msg := "Validation error:"
	for _, field := range sortedKeys(e.Fields) {
		msg += fmt.Sprintf(" %s %s;", field, e.Fields[field])
	}
	return msg[:len(msg)-1]
}
