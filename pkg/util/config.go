// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"errors"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// LoggingConfig is the [logging] block shared by all configuration files.
type LoggingConfig struct {
	Level        string `toml:"level" env:"LOG_LEVEL"`
	Format       string `toml:"format" env:"LOG_FORMAT"`
	ReportCaller bool   `toml:"report_caller"`
}

// SetupLogging configures logrus' level and formatter.
func SetupLogging(conf LoggingConfig) error {
	if conf.Level != "" {
		lvl, err := log.ParseLevel(conf.Level)
		if err != nil {
			return NewConfigError("Error parsing log level", err)
		}
		log.SetLevel(lvl)
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		return NewConfigError("Unknown logging format "+conf.Format, nil)
	}

	return nil
}

// DecodeFile reads a TOML file into target and applies environment overrides on top.
// Variables are read from the process environment and an optional .env file in the working directory;
// prefix is prepended to every env tag of target, e.g. "COAP_GATEWAY_".
func DecodeFile(filename, prefix string, target any) error {
	if filename != "" {
		if _, err := toml.DecodeFile(filename, target); err != nil {
			return NewConfigError("Error parsing toml", err)
		}
	}
	return LoadEnv(prefix, target)
}

// LoadEnv overrides the fields of target carrying an env tag with the values set in the environment.
func LoadEnv(prefix string, target any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Failed reading .env file")
	}

	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return NewConfigError("Error parsing environment", err)
	}
	return nil
}
