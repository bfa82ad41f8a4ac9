// Copyright 2017 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorType classifies a failed fetch.
type ErrorType string

const (
	// ErrTransport means the metrics service could not be reached.
	ErrTransport ErrorType = "transport"
	// ErrService means the service answered with an error envelope.
	ErrService ErrorType = "service"
	// ErrDecode means the response did not match the expected envelope.
	ErrDecode ErrorType = "bad_response"
)

// Error is an error returned by a Fetcher.
type Error struct {
	Type ErrorType
	Msg  string
	// ServiceType is the Prometheus errorType (bad_data, timeout, ...) for
	// ErrService errors.
	ServiceType string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.ServiceType != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.ServiceType, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func hasErrorType(err error, typ ErrorType) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == typ
}

// IsTransportError reports whether err is a failure to reach the service.
func IsTransportError(err error) bool { return hasErrorType(err, ErrTransport) }

// IsServiceError reports whether err is an error reported by the service.
func IsServiceError(err error) bool { return hasErrorType(err, ErrService) }

// IsDecodeError reports whether err is a malformed response.
func IsDecodeError(err error) bool { return hasErrorType(err, ErrDecode) }

// ResponseStatus is the type of response from the API: succeeded or error.
type ResponseStatus string

const (
	ResponseSucceeded ResponseStatus = "success"
	ResponseError     ResponseStatus = "error"
)

// APIResponse represents the raw response returned by the API.
type APIResponse struct {
	// Status indicates whether this request was successful or whether it errored out.
	Status ResponseStatus `json:"status"`
	// Data contains the raw data response for this request.
	Data json.RawMessage `json:"data"`

	// ErrorType is the type of error, if this is an error response.
	ErrorType string `json:"errorType"`
	// Error is the error message, if this is an error response.
	Error string `json:"error"`
}
