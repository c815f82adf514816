// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dtn7/dtn7-coap/pkg/originator"
)

type recordingExecutor struct {
	commands []originator.Command
	fail     bool
}

func (exec *recordingExecutor) Execute(ctx context.Context, cmd originator.Command, uri string, confirmable bool) (string, error) {
	exec.commands = append(exec.commands, cmd)
	if exec.fail {
		return "", errors.New("no reply")
	}
	return "2.05 " + cmd.Value, nil
}

func TestPrompt(t *testing.T) {
	exec := &recordingExecutor{}
	var out bytes.Buffer

	in := strings.NewReader("21.5\n\nnonsense\nGET all\nexit\nGET\n")
	if err := prompt(context.Background(), exec, in, &out, "coap://localhost/temperature", false); err != nil {
		t.Fatal(err)
	}

	if len(exec.commands) != 3 {
		t.Fatalf("Executed %v", exec.commands)
	}
	if exec.commands[0].Kind != originator.CommandPut || exec.commands[2].Kind != originator.CommandGetAll {
		t.Fatalf("Executed %v", exec.commands)
	}
	// the server, not the prompt, rejects non-numeric temperatures
	if exec.commands[1] != (originator.Command{Kind: originator.CommandPut, Value: "nonsense"}) {
		t.Fatalf("Free text executed as %+v", exec.commands[1])
	}
	if !strings.Contains(out.String(), "empty command") {
		t.Fatalf("Output misses empty command error: %q", out.String())
	}
	if !strings.Contains(out.String(), "2.05 21.5") {
		t.Fatalf("Output misses result: %q", out.String())
	}
}

func TestPrompt_EndOfInput(t *testing.T) {
	exec := &recordingExecutor{fail: true}
	var out bytes.Buffer

	if err := prompt(context.Background(), exec, strings.NewReader("GET\n"), &out, "coap://localhost/temperature", false); err != nil {
		t.Fatal(err)
	}
	if len(exec.commands) != 1 {
		t.Fatalf("Executed %v", exec.commands)
	}
	if !strings.Contains(out.String(), "Request failed: no reply") {
		t.Fatalf("Output misses failure: %q", out.String())
	}
}

func TestPrompt_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// a reader which never returns must not block the prompt
	blocked := &blockingReader{release: make(chan struct{})}
	defer close(blocked.release)

	if err := prompt(ctx, &recordingExecutor{}, blocked, &bytes.Buffer{}, "coap://localhost/temperature", false); err != nil {
		t.Fatal(err)
	}
}

type blockingReader struct {
	release chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.release
	return 0, errors.New("released")
}
