// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package aap

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSubscribed is returned by Receive and Ack on sessions which were not configured as subscriber.
	ErrNotSubscribed = errors.New("session is not subscribed")
	// ErrSubscribed is returned by Send and Keepalive on subscribed sessions.
	ErrSubscribed = errors.New("session is subscribed and can not issue requests")
	// ErrUnackedADU is returned by Receive while the previously received ADU has not been acknowledged.
	ErrUnackedADU = errors.New("previous ADU has not been acknowledged")
	// ErrNothingToAck is returned by Ack if there is no outstanding ADU.
	ErrNothingToAck = errors.New("no ADU awaiting acknowledgement")
	// ErrNotConfigured is returned by operations issued before Configure.
	ErrNotConfigured = errors.New("session has not been configured")
)

// AuthenticationError is returned if the agent rejects the secret of a session.
type AuthenticationError string

func NewAuthenticationError(endpoint string) *AuthenticationError {
	err := AuthenticationError(endpoint)
	return &err
}

func (err *AuthenticationError) Error() string {
	return fmt.Sprintf("agent refused secret for %v", string(*err))
}

// AgentDisconnectedError is returned once the connection to the agent is gone.
type AgentDisconnectedError struct {
	cause error
}

func NewAgentDisconnectedError(cause error) *AgentDisconnectedError {
	return &AgentDisconnectedError{cause: cause}
}

func (err *AgentDisconnectedError) Error() string {
	if err.cause == nil {
		return "agent connection closed"
	}
	return fmt.Sprintf("agent connection closed: %v", err.cause)
}

func (err *AgentDisconnectedError) Unwrap() error { return err.cause }

// AgentOperationFailedError is returned if the agent answers a request with anything but success.
type AgentOperationFailedError struct {
	Operation string
	Status    ResponseStatus
	Reason    string
}

func NewAgentOperationFailedError(operation string, status ResponseStatus, reason string) *AgentOperationFailedError {
	return &AgentOperationFailedError{Operation: operation, Status: status, Reason: reason}
}

func (err *AgentOperationFailedError) Error() string {
	if err.Reason == "" {
		return fmt.Sprintf("%v failed with status %v", err.Operation, err.Status)
	}
	return fmt.Sprintf("%v failed with status %v: %v", err.Operation, err.Status, err.Reason)
}

// IsDisconnected reports whether err signals a lost agent connection.
func IsDisconnected(err error) bool {
	var disconnected *AgentDisconnectedError
	return errors.As(err, &disconnected)
}
