// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// coap-gateway receives CoAP requests from its bundle agent, performs them against CoAP servers reachable
// from this node and sends the responses back to the originating node.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/gateway"
	"github.com/dtn7/dtn7-coap/pkg/metrics"
	"github.com/dtn7/dtn7-coap/pkg/resolver"
	"github.com/dtn7/dtn7-coap/pkg/util"
)

// serve runs one gateway on a fresh pair of sessions until the sessions are lost or ctx is done.
func serve(ctx context.Context, conf *config, res *resolver.Resolver, dispatcher gateway.Dispatcher) error {
	pair, err := aap.DialPair(ctx, conf.Agent)
	if err != nil {
		return err
	}
	defer func() {
		if err := pair.Close(); err != nil {
			log.WithError(err).Debug("Error closing bundle agent sessions")
		}
	}()

	// later reconnects must present the same secret
	conf.Agent.Secret = pair.Secret()

	gw := gateway.NewGateway(pair.Receiver, pair.Sender, res, dispatcher, conf.Gateway)
	return gw.Run(ctx)
}

func run(ctx context.Context, conf *config, res *resolver.Resolver, dispatcher gateway.Dispatcher) error {
	for {
		err := serve(ctx, conf, res, dispatcher)
		if ctx.Err() != nil {
			return nil
		}
		if !conf.Reconnect.Enabled {
			return err
		}

		log.WithFields(log.Fields{
			"error":    err,
			"interval": conf.Reconnect.Interval,
		}).Warn("Bundle agent sessions lost, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(conf.Reconnect.Interval):
		}
	}
}

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

	res := resolver.NewResolver(conf.Network, nil, conf.Resolver.TTL)
	dispatcher := gateway.NewUDPDispatcher(nil)

	s, err := gocron.NewScheduler()
	if err != nil {
		log.WithError(err).Fatal("Error initializing cron")
	}
	_, err = s.NewJob(
		gocron.DurationJob(
			conf.Resolver.PurgeInterval,
		),
		gocron.NewTask(
			res.Purge,
		),
	)
	if err != nil {
		log.WithError(err).Fatal("Error initializing resolver purge cronjob")
	}
	s.Start()
	defer func() {
		if err := s.Shutdown(); err != nil {
			log.WithError(err).Warn("Error shutting down cron")
		}
	}()

	// stop on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if conf.Metrics != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, conf.Metrics, metrics.NewRouter())
		})
	}
	g.Go(func() error {
		return run(ctx, &conf, res, dispatcher)
	})

	log.WithFields(log.Fields{
		"agent":   conf.Agent.Address,
		"network": conf.Network,
	}).Info("CoAP gateway running")

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("CoAP gateway stopped")
		os.Exit(1)
	}
	log.Info("Shutting down")
}
