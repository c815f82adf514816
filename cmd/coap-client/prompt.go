// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-coap/pkg/originator"
)

const promptText = "Temperature, GET, GET all, random or exit: "

type executor interface {
	Execute(ctx context.Context, cmd originator.Command, uri string, confirmable bool) (string, error)
}

// prompt reads commands from in until exit, end of input or ctx being done.
// Failed requests are reported on out and do not end the loop.
func prompt(ctx context.Context, exec executor, in io.Reader, out io.Writer, uri string, confirmable bool) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		_, _ = fmt.Fprint(out, promptText)

		var line string
		select {
		case <-ctx.Done():
			return nil

		case l, ok := <-lines:
			if !ok {
				_, _ = fmt.Fprintln(out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		cmd, err := originator.ParseCommand(line)
		if err != nil {
			_, _ = fmt.Fprintln(out, err)
			continue
		}
		if cmd.Kind == originator.CommandExit {
			return nil
		}

		result, err := exec.Execute(ctx, cmd, uri, confirmable)
		if err != nil {
			log.WithError(err).WithField("command", line).Debug("Request failed")
			_, _ = fmt.Fprintf(out, "Request failed: %v\n", err)
			continue
		}
		_, _ = fmt.Fprintln(out, result)
	}
}
