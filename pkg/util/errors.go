// SPDX-FileCopyrightText: 2023 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util provides the configuration and logging plumbing shared by the commands.
package util

import "fmt"

type AlreadyInitialised string

func (err *AlreadyInitialised) Error() string {
	return fmt.Sprintf("%s was already initialised", string(*err))
}

func NewAlreadyInitialisedError(name string) *AlreadyInitialised {
	err := AlreadyInitialised(name)
	return &err
}

// ConfigError is returned if a configuration file or the environment holds invalid values.
type ConfigError struct {
	message string
	cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{message: message, cause: cause}
}

func (e *ConfigError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("Error during config parsing: %v", e.message)
	}
	return fmt.Sprintf("Error during config parsing: %v: %v", e.message, e.cause)
}

func (e *ConfigError) Unwrap() error { return e.cause }
