// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package resolver

import "fmt"

// ResolutionError is returned if a host name can not be mapped to an address of the configured family.
type ResolutionError struct {
	host  string
	cause error
}

func NewResolutionError(host string, cause error) *ResolutionError {
	return &ResolutionError{host: host, cause: cause}
}

func (err *ResolutionError) Error() string {
	if err.cause == nil {
		return fmt.Sprintf("could not resolve %q", err.host)
	}
	return fmt.Sprintf("could not resolve %q: %v", err.host, err.cause)
}

func (err *ResolutionError) Unwrap() error { return err.cause }

// Host returns the name which failed to resolve.
func (err *ResolutionError) Host() string { return err.host }
