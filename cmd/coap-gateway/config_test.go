// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dtn7/dtn7-coap/pkg/gateway"
	"github.com/dtn7/dtn7-coap/pkg/resolver"
	"github.com/dtn7/dtn7-coap/pkg/util"
)

func writeConfig(t *testing.T, content string) string {
	filename := filepath.Join(t.TempDir(), "gateway.toml")
	if err := os.WriteFile(filename, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestParse_Defaults(t *testing.T) {
	conf, err := parse(writeConfig(t, `
[agent]
address = "/tmp/dtn-agent.sock"
`))
	if err != nil {
		t.Fatal(err)
	}

	if conf.Agent.Network != "unix" || conf.Agent.SendAgentID != "snd" || conf.Agent.ReceiveAgentID != "rec" {
		t.Fatalf("Unexpected agent config %+v", conf.Agent)
	}
	if conf.Network != resolver.UDP6 {
		t.Fatalf("Default network is %v", conf.Network)
	}
	if conf.Gateway.ReplyAgentID != gateway.DefaultReplyAgentID || conf.Gateway.CoAPTimeout != gateway.DefaultCoAPTimeout {
		t.Fatalf("Unexpected gateway config %+v", conf.Gateway)
	}
	if conf.Gateway.AckBudget != gateway.DefaultAckBudget || conf.Gateway.ExchangeBound() > conf.Gateway.AckBudget {
		t.Fatalf("Default CoAP timing exceeds the ack budget: %+v", conf.Gateway)
	}
	if conf.Gateway.Retry.Attempts != 0 {
		t.Fatalf("Retries enabled by default: %+v", conf.Gateway.Retry)
	}
	if conf.Reconnect.Enabled {
		t.Fatal("Reconnect enabled by default")
	}
}

func TestParse_Full(t *testing.T) {
	t.Setenv("COAP_GATEWAY_COAP_RETRY_ATTEMPTS", "3")

	conf, err := parse(writeConfig(t, `
[logging]
level = "debug"

[agent]
network = "tcp"
address = "127.0.0.1:35039"
reply_agent = "replies"
keepalive = "30s"
ack_budget = "9s"

[coap]
network = "udp4"
timeout = "2s"
retry_attempts = 1
retry_backoff = "100ms"

[resolver]
ttl = "1m"
purge_interval = "10s"

[reconnect]
enabled = true
interval = "1s"

[metrics]
address = "127.0.0.1:9100"
`))
	if err != nil {
		t.Fatal(err)
	}

	if conf.Network != resolver.UDP4 || conf.Gateway.CoAPTimeout != 2*time.Second {
		t.Fatalf("Unexpected CoAP config %+v", conf)
	}
	if conf.Gateway.AckBudget != 9*time.Second {
		t.Fatalf("Unexpected ack budget %v", conf.Gateway.AckBudget)
	}
	if conf.Gateway.Retry.Attempts != 3 || conf.Gateway.Retry.Backoff != 100*time.Millisecond {
		t.Fatalf("Unexpected retry policy %+v", conf.Gateway.Retry)
	}
	if conf.Gateway.ReplyAgentID != "replies" || conf.Agent.Keepalive != 30*time.Second {
		t.Fatalf("Unexpected agent config %+v", conf.Agent)
	}
	if !conf.Reconnect.Enabled || conf.Reconnect.Interval != time.Second {
		t.Fatalf("Unexpected reconnect config %+v", conf.Reconnect)
	}
	if conf.Resolver.TTL != time.Minute || conf.Metrics != "127.0.0.1:9100" {
		t.Fatalf("Unexpected config %+v", conf)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		``,
		"[agent]\naddress = \"a.sock\"\n[coap]\nnetwork = \"tcp\"",
		"[agent]\naddress = \"a.sock\"\n[coap]\ntimeout = \"soon\"",
		"[agent]\naddress = \"a.sock\"\n[coap]\nretry_attempts = -1",
		"[agent]\naddress = \"a.sock\"\n[resolver]\npurge_interval = \"0s\"",
		"[agent]\naddress = \"a.sock\"\n[coap]\ntimeout = \"0s\"",
		"[agent]\naddress = \"a.sock\"\nack_budget = \"0s\"",
		// two attempts of 10s never fit into the default budget
		"[agent]\naddress = \"a.sock\"\n[coap]\nretry_attempts = 1",
		"[agent]\naddress = \"a.sock\"\nack_budget = \"5s\"\n[coap]\ntimeout = \"2s\"\nretry_attempts = 1\nretry_backoff = \"1500ms\"",
	}

	for _, content := range tests {
		_, err := parse(writeConfig(t, content))
		var confErr *util.ConfigError
		if !errors.As(err, &confErr) {
			t.Fatalf("%q: expected ConfigError, got %v", content, err)
		}
	}
}
