// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package gateway

import (
	"errors"
	"fmt"
)

// ErrNotRequest is returned for inbound payloads which decode to a CoAP response or an empty message.
var ErrNotRequest = errors.New("payload is no CoAP request")

// DispatchError is returned if the CoAP exchange with the target server failed, e.g. by a timeout.
type DispatchError struct {
	target   string
	attempts int
	cause    error
}

func NewDispatchError(target string, attempts int, cause error) *DispatchError {
	return &DispatchError{target: target, attempts: attempts, cause: cause}
}

func (err *DispatchError) Error() string {
	return fmt.Sprintf("CoAP exchange with %v failed after %d attempt(s): %v", err.target, err.attempts, err.cause)
}

func (err *DispatchError) Unwrap() error { return err.cause }

func (err *DispatchError) Target() string { return err.target }

// InvalidTransitionError signals a bug in the processing cycle.
type InvalidTransitionError struct {
	From State
	To   State
}

func NewInvalidTransitionError(from, to State) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

func (err *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %v -> %v", err.From, err.To)
}
