// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package correlator

import (
	"errors"
	"fmt"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
)

var (
	// ErrTokenInUse is returned by Register for a token which already has a pending slot.
	ErrTokenInUse = errors.New("token is already registered")
	// ErrUnknownToken is returned by Await for a token without a pending slot.
	ErrUnknownToken = errors.New("token is not registered")
)

// CorrelationTimeoutError is returned if no reply arrived for a token in time.
type CorrelationTimeoutError struct {
	Token   message.Token
	Timeout time.Duration
}

func NewCorrelationTimeoutError(token message.Token, timeout time.Duration) *CorrelationTimeoutError {
	return &CorrelationTimeoutError{Token: token, Timeout: timeout}
}

func (err *CorrelationTimeoutError) Error() string {
	return fmt.Sprintf("no reply for token %v within %v", err.Token, err.Timeout)
}
