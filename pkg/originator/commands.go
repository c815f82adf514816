// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package originator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
)

type CommandKind int

const (
	CommandGet CommandKind = iota
	CommandGetAll
	CommandPut
	CommandExit
)

// Command is one line of the interactive client.
type Command struct {
	Kind  CommandKind
	Value string
}

// ParseCommand interprets "get", "get all", "random" and "exit", ignoring case.
// Any other text becomes the payload of a PUT.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(strings.Join(strings.Fields(line), " ")) {
	case "":
		return Command{}, fmt.Errorf("empty command")
	case "exit", "quit":
		return Command{Kind: CommandExit}, nil
	case "get":
		return Command{Kind: CommandGet}, nil
	case "get all":
		return Command{Kind: CommandGetAll}, nil
	case "random":
		return Command{Kind: CommandPut, Value: RandomTemperature()}, nil
	}

	// anything else is sent as is; the server decides whether it is a temperature
	return Command{Kind: CommandPut, Value: line}, nil
}

// RandomTemperature returns a temperature between 10 and 30 degrees with two decimals.
func RandomTemperature() string {
	value := math.Round((10+rand.Float64()*20)*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// Request builds the CoAP request of cmd against the resource at uri.
// confirmable selects CON instead of NON.
func (cmd Command) Request(uri string, confirmable bool) (*coap_codec.Message, error) {
	var request *coap_codec.Message
	var err error

	switch cmd.Kind {
	case CommandGet:
		request, err = coap_codec.NewRequest(codes.GET, uri, nil)
	case CommandGetAll:
		separator := "?"
		if strings.Contains(uri, "?") {
			separator = "&"
		}
		request, err = coap_codec.NewRequest(codes.GET, uri+separator+"all", nil)
	case CommandPut:
		request, err = coap_codec.NewRequest(codes.PUT, uri, []byte(cmd.Value))
	default:
		return nil, fmt.Errorf("command %d issues no request", cmd.Kind)
	}
	if err != nil {
		return nil, err
	}

	if !confirmable {
		request.Type = message.NonConfirmable
	}
	return request, nil
}

// Execute runs cmd through orig and renders the reply for the user.
func (orig *Originator) Execute(ctx context.Context, cmd Command, uri string, confirmable bool) (string, error) {
	request, err := cmd.Request(uri, confirmable)
	if err != nil {
		return "", err
	}

	response, err := orig.Do(ctx, request)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v %s", response.Code, response.Payload), nil
}
