// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/gateway"
	"github.com/dtn7/dtn7-coap/pkg/resolver"
	"github.com/dtn7/dtn7-coap/pkg/util"
)

const envPrefix = "COAP_GATEWAY_"

type config struct {
	Logging   util.LoggingConfig
	Agent     aap.PairConfig
	Network   resolver.Network
	Gateway   gateway.Config
	Resolver  resolverConfig
	Reconnect reconnectConfig
	Metrics   string
}

type resolverConfig struct {
	TTL           time.Duration
	PurgeInterval time.Duration
}

type reconnectConfig struct {
	Enabled  bool
	Interval time.Duration
}

type tomlConfig struct {
	Logging   util.LoggingConfig
	Agent     agentTomlConfig
	CoAP      coapTomlConfig `toml:"coap"`
	Resolver  resolverTomlConfig
	Reconnect reconnectTomlConfig
	Metrics   metricsTomlConfig
}

type agentTomlConfig struct {
	Network      string `toml:"network" env:"AGENT_NETWORK"`
	Address      string `toml:"address" env:"AGENT_ADDRESS"`
	SendAgent    string `toml:"send_agent"`
	ReceiveAgent string `toml:"receive_agent"`
	ReplyAgent   string `toml:"reply_agent"`
	Secret       string `toml:"secret" env:"AGENT_SECRET"`
	Keepalive    string `toml:"keepalive"`
	AckBudget    string `toml:"ack_budget" env:"AGENT_ACK_BUDGET"`
}

type coapTomlConfig struct {
	Network       string `toml:"network" env:"COAP_NETWORK"`
	Timeout       string `toml:"timeout" env:"COAP_TIMEOUT"`
	RetryAttempts int    `toml:"retry_attempts" env:"COAP_RETRY_ATTEMPTS"`
	RetryBackoff  string `toml:"retry_backoff"`
}

type resolverTomlConfig struct {
	TTL           string `toml:"ttl"`
	PurgeInterval string `toml:"purge_interval"`
}

type reconnectTomlConfig struct {
	Enabled  bool   `toml:"enabled" env:"RECONNECT"`
	Interval string `toml:"interval"`
}

type metricsTomlConfig struct {
	Address string `toml:"address" env:"METRICS_ADDRESS"`
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, util.NewConfigError("Error parsing "+name, err)
	}
	if d < 0 {
		return 0, util.NewConfigError(name+" must not be negative", nil)
	}
	return d, nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func parse(filename string) (config, error) {
	var tomlConf tomlConfig
	if err := util.DecodeFile(filename, envPrefix, &tomlConf); err != nil {
		return config{}, err
	}

	if tomlConf.Agent.Address == "" {
		return config{}, util.NewConfigError("No bundle agent address configured", nil)
	}

	conf := config{
		Logging: tomlConf.Logging,
		Agent: aap.PairConfig{
			Network:        defaultString(tomlConf.Agent.Network, "unix"),
			Address:        tomlConf.Agent.Address,
			SendAgentID:    defaultString(tomlConf.Agent.SendAgent, "snd"),
			ReceiveAgentID: defaultString(tomlConf.Agent.ReceiveAgent, "rec"),
			Secret:         tomlConf.Agent.Secret,
		},
		Gateway: gateway.Config{
			ReplyAgentID: defaultString(tomlConf.Agent.ReplyAgent, gateway.DefaultReplyAgentID),
		},
		Reconnect: reconnectConfig{Enabled: tomlConf.Reconnect.Enabled},
		Metrics:   tomlConf.Metrics.Address,
	}

	var err error
	if conf.Network, err = resolver.NetworkFromString(tomlConf.CoAP.Network); err != nil {
		return config{}, util.NewConfigError("Error parsing CoAP network", err)
	}

	if tomlConf.CoAP.RetryAttempts < 0 {
		return config{}, util.NewConfigError("retry_attempts must not be negative", nil)
	}
	conf.Gateway.Retry.Attempts = tomlConf.CoAP.RetryAttempts

	durations := []struct {
		name     string
		value    string
		fallback time.Duration
		target   *time.Duration
	}{
		{"agent keepalive", tomlConf.Agent.Keepalive, 0, &conf.Agent.Keepalive},
		{"ack budget", tomlConf.Agent.AckBudget, gateway.DefaultAckBudget, &conf.Gateway.AckBudget},
		{"CoAP timeout", tomlConf.CoAP.Timeout, gateway.DefaultCoAPTimeout, &conf.Gateway.CoAPTimeout},
		{"retry backoff", tomlConf.CoAP.RetryBackoff, time.Second, &conf.Gateway.Retry.Backoff},
		{"resolver ttl", tomlConf.Resolver.TTL, 5 * time.Minute, &conf.Resolver.TTL},
		{"resolver purge interval", tomlConf.Resolver.PurgeInterval, time.Minute, &conf.Resolver.PurgeInterval},
		{"reconnect interval", tomlConf.Reconnect.Interval, 5 * time.Second, &conf.Reconnect.Interval},
	}
	for _, d := range durations {
		if *d.target, err = parseDuration(d.name, d.value, d.fallback); err != nil {
			return config{}, err
		}
	}

	if conf.Gateway.CoAPTimeout == 0 {
		return config{}, util.NewConfigError("CoAP timeout must be positive", nil)
	}
	if conf.Gateway.AckBudget == 0 {
		return config{}, util.NewConfigError("ack budget must be positive", nil)
	}
	// the ERROR ack for a request whose every attempt timed out must still fit into the budget
	if bound := conf.Gateway.ExchangeBound(); bound > conf.Gateway.AckBudget {
		return config{}, util.NewConfigError(fmt.Sprintf(
			"%d CoAP attempts of %v with %v backoff take up to %v, exceeding the ack budget of %v",
			1+conf.Gateway.Retry.Attempts, conf.Gateway.CoAPTimeout, conf.Gateway.Retry.Backoff,
			bound, conf.Gateway.AckBudget), nil)
	}

	if conf.Resolver.PurgeInterval == 0 {
		return config{}, util.NewConfigError("resolver purge interval must be positive", nil)
	}
	if conf.Reconnect.Enabled && conf.Reconnect.Interval == 0 {
		return config{}, util.NewConfigError("reconnect interval must be positive", nil)
	}

	return conf, nil
}
