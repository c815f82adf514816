// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// coap-sensor serves the demo temperature resource over CoAP.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-coap/pkg/resolver"
	"github.com/dtn7/dtn7-coap/pkg/sensor"
	"github.com/dtn7/dtn7-coap/pkg/util"
)

func main() {
	parser := argparse.NewParser("coap-sensor", "Serve a temperature resource over CoAP")
	parser.ExitOnHelp(true)
	network := parser.String("n", "network", &argparse.Options{
		Help:     "'udp4' or 'udp6'",
		Required: false,
		Default:  string(resolver.UDP6),
	})
	address := parser.String("a", "address", &argparse.Options{
		Help:     "Listen address",
		Required: false,
		Default:  "[::1]:5683",
	})
	creator := parser.Flag("c", "creator", &argparse.Options{
		Help:     "Allow creating resources with POST /create/<name>",
		Required: false,
		Default:  false,
	})
	logLevel := parser.String("l", "log-level", &argparse.Options{
		Help:     "Log level",
		Required: false,
		Default:  "info",
	})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if err := util.SetupLogging(util.LoggingConfig{Level: *logLevel}); err != nil {
		log.WithField("error", err).Fatal("Config error")
	}

	coapNetwork, err := resolver.NetworkFromString(*network)
	if err != nil {
		log.WithField("error", err).Fatal("Config error")
	}

	server := sensor.NewServer(sensor.NewTree(*creator), string(coapNetwork), *address)
	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("Error starting CoAP server")
	}

	log.WithFields(log.Fields{
		"address":   server.Address(),
		"resources": server.Tree().Paths(),
	}).Info("CoAP sensor running")

	// wait for SIGINT or SIGTERM
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("Shutting down")
	server.Stop()
}
