// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package originator

import (
	"strconv"
	"testing"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line  string
		kind  CommandKind
		value string
	}{
		{"GET", CommandGet, ""},
		{"  get ", CommandGet, ""},
		{"GET all", CommandGetAll, ""},
		{"get   ALL", CommandGetAll, ""},
		{"21.5", CommandPut, "21.5"},
		{"-4", CommandPut, "-4"},
		{"abc", CommandPut, "abc"},
		{" get some ", CommandPut, "get some"},
		{"exit", CommandExit, ""},
	}

	for _, test := range tests {
		cmd, err := ParseCommand(test.line)
		if err != nil {
			t.Fatalf("%q: %v", test.line, err)
		}
		if cmd.Kind != test.kind || cmd.Value != test.value {
			t.Fatalf("%q parsed to %+v", test.line, cmd)
		}
	}

	for _, line := range []string{"", "   ", "\t"} {
		if _, err := ParseCommand(line); err == nil {
			t.Fatalf("%q was accepted", line)
		}
	}
}

func TestParseCommand_Random(t *testing.T) {
	for range 100 {
		cmd, err := ParseCommand("random")
		if err != nil {
			t.Fatal(err)
		}
		if cmd.Kind != CommandPut {
			t.Fatalf("random parsed to %+v", cmd)
		}

		value, err := strconv.ParseFloat(cmd.Value, 64)
		if err != nil {
			t.Fatal(err)
		}
		if value < 10 || value > 30 {
			t.Fatalf("Random temperature %v out of range", value)
		}
	}
}

func TestCommand_Request(t *testing.T) {
	const uri = "coap://localhost/temperature"

	get, err := Command{Kind: CommandGetAll}.Request(uri, false)
	if err != nil {
		t.Fatal(err)
	}
	if get.Code != codes.GET || get.Type != message.NonConfirmable {
		t.Fatalf("Unexpected request %v", get)
	}
	if queries := get.Queries(); len(queries) != 1 || queries[0] != "all" {
		t.Fatalf("Unexpected queries %v", queries)
	}

	put, err := Command{Kind: CommandPut, Value: "21.5"}.Request(uri, true)
	if err != nil {
		t.Fatal(err)
	}
	if put.Code != codes.PUT || put.Type != message.Confirmable || string(put.Payload) != "21.5" {
		t.Fatalf("Unexpected request %v", put)
	}
	if put.Path() != "/temperature" {
		t.Fatalf("Unexpected path %v", put.Path())
	}

	if _, err := (Command{Kind: CommandExit}).Request(uri, false); err == nil {
		t.Fatal("exit produced a request")
	}
}
