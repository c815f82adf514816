// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// dtn-agent is a minimal bundle agent: it serves the control protocol on a local socket, delivers bundles
// between the agents of its node and forwards all others over static MTCP links.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dtn7/dtn7-coap/pkg/application_agent"
	"github.com/dtn7/dtn7-coap/pkg/application_agent/rest_agent"
	"github.com/dtn7/dtn7-coap/pkg/application_agent/unix_agent"
	"github.com/dtn7/dtn7-coap/pkg/cla/mtcp"
	"github.com/dtn7/dtn7-coap/pkg/id_keeper"
	"github.com/dtn7/dtn7-coap/pkg/metrics"
	"github.com/dtn7/dtn7-coap/pkg/util"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	conf, err := parse(os.Args[1])
	if err != nil {
		log.WithField("error", err).Fatal("Config error")
	}

	if err := util.SetupLogging(conf.Logging); err != nil {
		log.WithField("error", err).Fatal("Config error")
	}

	sequencer := id_keeper.NewBundleSequencer()
	manager, err := application_agent.NewManager(conf.NodeID, sequencer)
	if err != nil {
		log.WithField("error", err).Fatal("Error initialising bundle agent")
	}
	if conf.Lifetime != "" {
		manager.SetLifetime(conf.Lifetime)
	}
	defer manager.Shutdown()

	// Setup links
	var listener *mtcp.MTCPServer
	if conf.Listener != "" {
		listener = mtcp.NewMTCPServer(conf.Listener, manager.NodeID(), manager.Receive)
		if err := listener.Start(); err != nil {
			log.WithError(err).Fatal("Error starting MTCP listener")
		}
	}

	peers := make([]*mtcp.MTCPClient, 0, len(conf.Peers))
	for _, peer := range conf.Peers {
		client := mtcp.NewMTCPClient(peer.Address, peer.NodeID)
		if err := client.Activate(); err != nil {
			log.WithFields(log.Fields{
				"peer":  client,
				"error": err,
			}).Warn("Peer unreachable, dialling again on the next bundle")
		}
		manager.AddRoute(peer.NodeID, client)
		peers = append(peers, client)
	}

	defer func() {
		var closeErr *multierror.Error
		if listener != nil {
			if err := listener.Close(); err != nil {
				closeErr = multierror.Append(closeErr, err)
			}
		}
		for _, peer := range peers {
			if err := peer.Close(); err != nil {
				closeErr = multierror.Append(closeErr, err)
			}
		}
		if err := closeErr.ErrorOrNil(); err != nil {
			log.WithError(err).Warn("Error closing links")
		}
	}()

	s, err := gocron.NewScheduler()
	if err != nil {
		log.WithError(err).Fatal("Error initializing cron")
	}
	_, err = s.NewJob(
		gocron.DurationJob(
			conf.Cron.SequencerClean,
		),
		gocron.NewTask(
			sequencer.Clean,
		),
	)
	if err != nil {
		log.WithError(err).Fatal("Error initializing sequencer cleanup cronjob")
	}
	s.Start()
	defer func() {
		if err := s.Shutdown(); err != nil {
			log.WithError(err).Warn("Error shutting down cron")
		}
	}()

	// Setup application agents
	if conf.UNIX.Address != "" {
		unixAgent, err := unix_agent.NewUNIXAgent(manager, conf.UNIX)
		if err != nil {
			log.WithError(err).Fatal("Error creating UNIX application agent")
		}
		if err := manager.RegisterAgent(unixAgent); err != nil {
			log.WithError(err).Fatal("Error registering UNIX application agent")
		}
	}

	if conf.REST.Address != "" {
		restAgent := rest_agent.NewRestAgent(manager, conf.REST.Prefix, conf.REST.Address)
		if err := manager.RegisterAgent(restAgent); err != nil {
			log.WithError(err).Fatal("Error registering REST application agent")
		}
	}

	// wait for SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if conf.Metrics != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, conf.Metrics, metrics.NewRouter())
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	log.WithField("node", manager.NodeID()).Info("Bundle agent running")
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Status server failed")
	}
	log.Info("Shutting down")
}
