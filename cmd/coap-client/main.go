// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// coap-client sends CoAP requests typed on stdin across the DTN to a remote gateway and prints the replies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/correlator"
	"github.com/dtn7/dtn7-coap/pkg/id_keeper"
	"github.com/dtn7/dtn7-coap/pkg/originator"
	"github.com/dtn7/dtn7-coap/pkg/util"
)

func fail(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func main() {
	parser := argparse.NewParser("coap-client", "Send CoAP requests through the bundle agent to a remote gateway")
	parser.ExitOnHelp(true)
	network := parser.String("n", "network", &argparse.Options{
		Help:     "Network of the bundle agent's socket, 'unix' or 'tcp'",
		Required: false,
		Default:  "unix",
	})
	address := parser.String("a", "address", &argparse.Options{
		Help:     "Address of the bundle agent's socket",
		Required: false,
		Default:  "/tmp/dtn-agent.socket",
	})
	destination := parser.String("d", "destination", &argparse.Options{
		Help:     "EndpointID of the remote gateway",
		Required: false,
		Default:  "dtn://b.dtn/rec",
	})
	uri := parser.String("u", "uri", &argparse.Options{
		Help:     "CoAP resource to query, as seen from the remote gateway",
		Required: false,
		Default:  "coap://localhost/temperature",
	})
	timeout := parser.String("t", "timeout", &argparse.Options{
		Help:     "Time to wait for a reply",
		Required: false,
		Default:  originator.DefaultTimeout.String(),
	})
	confirmable := parser.Flag("c", "confirmable", &argparse.Options{
		Help:     "Send confirmable requests",
		Required: false,
		Default:  false,
	})
	sendAgent := parser.String("s", "send-agent", &argparse.Options{
		Help:     "Agent ID requests are sent from",
		Required: false,
		Default:  "snd",
	})
	receiveAgent := parser.String("r", "receive-agent", &argparse.Options{
		Help:     "Agent ID replies are received on",
		Required: false,
		Default:  "rec",
	})
	secret := parser.String("S", "secret", &argparse.Options{
		Help:     "Secret of both agent IDs, generated if empty",
		Required: false,
		Default:  "",
	})
	keepalive := parser.String("k", "keepalive", &argparse.Options{
		Help:     "Keepalive interval of the agent sessions, 0 to disable",
		Required: false,
		Default:  "0s",
	})
	logLevel := parser.String("l", "log-level", &argparse.Options{
		Help:     "Log level",
		Required: false,
		Default:  "warn",
	})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if err := util.SetupLogging(util.LoggingConfig{Level: *logLevel}); err != nil {
		fail(err)
	}

	replyTimeout, err := time.ParseDuration(*timeout)
	if err != nil {
		fail(util.NewConfigError("Error parsing timeout", err))
	} else if replyTimeout <= 0 {
		fail(util.NewConfigError("Timeout must be positive", nil))
	}
	keepaliveInterval, err := time.ParseDuration(*keepalive)
	if err != nil {
		fail(util.NewConfigError("Error parsing keepalive", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	pair, err := aap.DialPair(dialCtx, aap.PairConfig{
		Network:        *network,
		Address:        *address,
		SendAgentID:    *sendAgent,
		ReceiveAgentID: *receiveAgent,
		Secret:         *secret,
		Keepalive:      keepaliveInterval,
	})
	cancelDial()
	if err != nil {
		fail(err)
	}
	defer func() {
		if err := pair.Close(); err != nil {
			log.WithError(err).Debug("Error closing bundle agent sessions")
		}
	}()

	corr := correlator.NewCorrelator()
	if err := corr.StartSweeper(replyTimeout, 2*replyTimeout); err != nil {
		fail(err)
	}
	defer func() {
		if err := corr.Stop(); err != nil {
			log.WithError(err).Debug("Error stopping correlator sweeper")
		}
	}()

	orig := originator.NewOriginator(pair.Sender, pair.Receiver, id_keeper.NewIdKeeper(), corr, originator.Config{
		Destination: *destination,
		Timeout:     replyTimeout,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orig.RunReceiver(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return prompt(ctx, orig, os.Stdin, os.Stdout, *uri, *confirmable)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Client stopped")
	}
}
