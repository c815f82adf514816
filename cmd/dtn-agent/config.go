// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/application_agent/unix_agent"
	"github.com/dtn7/dtn7-coap/pkg/util"
)

const envPrefix = "DTN_AGENT_"

type config struct {
	NodeID   bpv7.EndpointID
	Lifetime string
	Logging  util.LoggingConfig
	UNIX     unix_agent.Config
	REST     agentsRESTConfig
	Listener string
	Peers    []peerConfig
	Cron     cronConfig
	Metrics  string
}

type tomlConfig struct {
	NodeID   string `toml:"node_id" env:"NODE_ID"`
	Lifetime string `toml:"lifetime" env:"LIFETIME"`
	Logging  util.LoggingConfig
	Agents   agentsTomlConfig
	Listener listenerTomlConfig
	Peer     []peerTomlConfig
	Cron     cronTomlConfig
	Metrics  metricsTomlConfig
}

type agentsTomlConfig struct {
	UNIX agentsUNIXTomlConfig
	REST agentsRESTConfig
}

type agentsUNIXTomlConfig struct {
	Network         string `toml:"network" env:"UNIX_NETWORK"`
	Address         string `toml:"address" env:"UNIX_ADDRESS"`
	AdminSecret     string `toml:"admin_secret" env:"ADMIN_SECRET"`
	AckTimeout      string `toml:"ack_timeout"`
	ConfigTimeout   string `toml:"config_timeout"`
	MailboxCapacity int    `toml:"mailbox_capacity"`
}

// agentsRESTConfig describes the optional REST agent.
type agentsRESTConfig struct {
	Address string `toml:"address" env:"REST_ADDRESS"`
	Prefix  string `toml:"prefix"`
}

type listenerTomlConfig struct {
	Address string `toml:"address" env:"LISTENER_ADDRESS"`
}

type peerTomlConfig struct {
	NodeID  string `toml:"node_id"`
	Address string `toml:"address"`
}

type peerConfig struct {
	NodeID  bpv7.EndpointID
	Address string
}

type cronTomlConfig struct {
	SequencerClean string `toml:"sequencer_clean"`
}

type cronConfig struct {
	SequencerClean time.Duration
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
	return d, nil
}

func parse(filename string) (config, error) {
	var tomlConf tomlConfig
	if err := util.DecodeFile(filename, envPrefix, &tomlConf); err != nil {
		return config{}, err
	}

	nodeID, err := bpv7.NewEndpointID(tomlConf.NodeID)
	if err != nil {
		return config{}, util.NewConfigError("Error parsing NodeID", err)
	}

	conf := config{
		NodeID:   nodeID,
		Lifetime: tomlConf.Lifetime,
		Logging:  tomlConf.Logging,
		REST:     tomlConf.Agents.REST,
		Listener: tomlConf.Listener.Address,
		Metrics:  tomlConf.Metrics.Address,
		Peers:    make([]peerConfig, 0, len(tomlConf.Peer)),
	}
	if conf.REST.Prefix == "" {
		conf.REST.Prefix = "/rest"
	}

	unixConf := tomlConf.Agents.UNIX
	conf.UNIX = unix_agent.Config{
		Network:         unixConf.Network,
		Address:         unixConf.Address,
		AdminSecret:     unixConf.AdminSecret,
		MailboxCapacity: unixConf.MailboxCapacity,
	}
	if conf.UNIX.AckTimeout, err = parseDuration("ack_timeout", unixConf.AckTimeout, unix_agent.DefaultAckTimeout); err != nil {
		return config{}, err
	}
	if conf.UNIX.ConfigTimeout, err = parseDuration("config_timeout", unixConf.ConfigTimeout, unix_agent.DefaultConfigTimeout); err != nil {
		return config{}, err
	}

	for _, peer := range tomlConf.Peer {
		peerID, err := bpv7.NewEndpointID(peer.NodeID)
		if err != nil {
			return config{}, util.NewConfigError("Error parsing peer NodeID", err)
		}
		if peer.Address == "" {
			return config{}, util.NewConfigError("Peer "+peer.NodeID+" has no address", nil)
		}
		conf.Peers = append(conf.Peers, peerConfig{NodeID: peerID, Address: peer.Address})
	}

	if conf.Cron.SequencerClean, err = parseDuration("sequencer_clean", tomlConf.Cron.SequencerClean, 10*time.Minute); err != nil {
		return config{}, err
	}

	return conf, nil
}
