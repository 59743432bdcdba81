// errors.go - Public error taxonomy.
// Copyright (C) 2021  The Awala PoWeb Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package poweb

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown is the error returned when an operation fails because the
	// client has been shut down.
	ErrShutdown = errors.New("poweb: client is shut down")

	// ErrSessionClosed is the error returned when a parcel collection is
	// acknowledged after its session has already terminated.
	ErrSessionClosed = errors.New("poweb: collection session is closed")
)

// ServerConnectionError is the error used to indicate a transient
// connectivity failure or a server-side outage.  Retrying later may
// succeed.
type ServerConnectionError struct {
	// Message describes the failure.
	Message string

	// Err is the original error, if any.
	Err error
}

// Error implements the error interface.
func (e *ServerConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ServerConnectionError) Unwrap() error {
	return e.Err
}

func newServerConnectionError(f string, a ...interface{}) error {
	return &ServerConnectionError{Message: fmt.Sprintf(f, a...)}
}

// ServerBindingError is the error used to indicate that the server violated
// the PoWeb binding (undecodable message, unexpected redirect, wrong
// content type).  Retrying is unlikely to help.
type ServerBindingError struct {
	// Message describes the violation.
	Message string

	// Err is the original error, if any.
	Err error
}

// Error implements the error interface.
func (e *ServerBindingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ServerBindingError) Unwrap() error {
	return e.Err
}

func newServerBindingError(f string, a ...interface{}) error {
	return &ServerBindingError{Message: fmt.Sprintf(f, a...)}
}

// ClientBindingError is the error used when the server rejected the request
// as a protocol violation by this client.  It carries the HTTP status of
// the rejection.
type ClientBindingError struct {
	// StatusCode is the HTTP status the server responded with.
	StatusCode int
}

// Error implements the error interface.
func (e *ClientBindingError) Error() string {
	return fmt.Sprintf("The server returned a %d response", e.StatusCode)
}

// RejectedParcelError is the error used when the server refused a specific
// parcel.
type RejectedParcelError struct {
	// Message describes the refusal.
	Message string
}

// Error implements the error interface.
func (e *RejectedParcelError) Error() string {
	return e.Message
}

// NonceSignerError is the error used to indicate a local precondition
// failure involving the nonce signers.
type NonceSignerError struct {
	// Message describes the failure.
	Message string

	// Err is the original error, if any.
	Err error
}

// Error implements the error interface.
func (e *NonceSignerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *NonceSignerError) Unwrap() error {
	return e.Err
}

// IsServerError returns true if err is attributable to the server or the
// connection to it, i.e. it is a ServerConnectionError or a
// ServerBindingError.  It allows callers to catch the whole family of
// server faults without enumerating the concrete types.
func IsServerError(err error) bool {
	var connErr *ServerConnectionError
	var bindErr *ServerBindingError
	return errors.As(err, &connErr) || errors.As(err, &bindErr)
}
