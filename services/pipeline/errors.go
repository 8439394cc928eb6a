// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Match with errors.Is on a *RequestError.
var (
	// ErrInvalidPipeline indicates the body did not match the pipeline schema.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrDuplicateNodeID indicates a node id was declared more than once
	// while the reject policy is active.
	ErrDuplicateNodeID = errors.New("duplicate node id")

	// ErrAnalysisFailed indicates an unexpected failure while analyzing an
	// otherwise valid pipeline.
	ErrAnalysisFailed = errors.New("error analyzing pipeline")
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeDuplicateNodeID = "DUPLICATE_NODE_ID"
	CodeAnalysisFailed  = "ANALYSIS_FAILED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// ErrorKind separates caller mistakes from failures on our side.
type ErrorKind int

const (
	// KindSchema means the input was rejected before analysis ran.
	KindSchema ErrorKind = iota + 1

	// KindInternal means analysis itself failed.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// RequestError is the failure half of every request result.
//
// Handlers return (response, *RequestError) and a single writer turns the
// error into an HTTP response; nothing is signalled by panicking.
type RequestError struct {
	Kind ErrorKind

	// Code is the ErrorResponse code.
	Code string

	// Message is safe to show to the caller.
	Message string

	// Err is the wrapped cause, for errors.Is and logging.
	Err error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for the error.
//
// Both kinds map to 400: the editor treats any failure as "this pipeline
// could not be checked" and shows the message.
func (e *RequestError) Status() int {
	return http.StatusBadRequest
}

func schemaError(code string, sentinel error, message string) *RequestError {
	return &RequestError{
		Kind:    KindSchema,
		Code:    code,
		Message: message,
		Err:     fmt.Errorf("%w: %s", sentinel, message),
	}
}

func internalError(cause error) *RequestError {
	return &RequestError{
		Kind:    KindInternal,
		Code:    CodeAnalysisFailed,
		Message: "Error analyzing pipeline: " + cause.Error(),
		Err:     fmt.Errorf("%w: %w", ErrAnalysisFailed, cause),
	}
}
