// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sensor is a small CoAP server exposing a temperature sensor, used as the far end of relayed requests.
package sensor

import (
	"strconv"
	"strings"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message/codes"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
)

const (
	TemperaturePath = "temperature"
	CreatorPath     = "create"
)

// ResourceKind selects how a resource reacts to requests.
type ResourceKind int

const (
	// StaticResource serves its data on GET; POST appends a line.
	StaticResource ResourceKind = iota

	// TemperatureResource records temperatures on PUT and serves the last or all of them on GET.
	TemperatureResource

	// CreatorResource creates a StaticResource below the root on POST to create/<name>.
	CreatorResource
)

func (kind ResourceKind) String() string {
	switch kind {
	case StaticResource:
		return "static"

	case TemperatureResource:
		return "temperature"

	case CreatorResource:
		return "creator"

	default:
		return "unknown"
	}
}

type resource struct {
	kind         ResourceKind
	data         string
	temperatures []float64
}

// Response is the answer of a resource.
type Response struct {
	Code    codes.Code
	Payload []byte
}

func respond(code codes.Code, payload string) Response {
	return Response{Code: code, Payload: []byte(payload)}
}

// Tree maps paths to resources. It is safe for concurrent use.
type Tree struct {
	mutex     sync.Mutex
	resources map[string]*resource
}

// NewTree creates a tree holding the temperature resource and, if withCreator is set, the creator.
func NewTree(withCreator bool) *Tree {
	tree := Tree{
		resources: map[string]*resource{
			TemperaturePath: {kind: TemperatureResource},
		},
	}
	if withCreator {
		tree.resources[CreatorPath] = &resource{kind: CreatorResource}
	}
	return &tree
}

// Paths returns all resource paths.
func (tree *Tree) Paths() []string {
	tree.mutex.Lock()
	defer tree.mutex.Unlock()

	paths := make([]string, 0, len(tree.resources))
	for path := range tree.resources {
		paths = append(paths, path)
	}
	return paths
}

// Serve answers a request.
func (tree *Tree) Serve(request *coap_codec.Message) Response {
	segments := strings.Split(strings.Trim(request.Path(), "/"), "/")

	tree.mutex.Lock()
	defer tree.mutex.Unlock()

	res, ok := tree.resources[segments[0]]
	if !ok {
		return respond(codes.NotFound, "Resource not found.")
	}

	switch res.kind {
	case TemperatureResource:
		if len(segments) != 1 {
			return respond(codes.NotFound, "Resource not found.")
		}
		return res.serveTemperature(request)

	case CreatorResource:
		return tree.create(request, segments[1:])

	default:
		if len(segments) != 1 {
			return respond(codes.NotFound, "Resource not found.")
		}
		return res.serveStatic(request)
	}
}

func (res *resource) serveTemperature(request *coap_codec.Message) Response {
	switch request.Code {
	case codes.GET:
		for _, query := range request.Queries() {
			if query == "all" {
				values := make([]string, len(res.temperatures))
				for i, temperature := range res.temperatures {
					values[i] = FormatTemperature(temperature)
				}
				return respond(codes.Content, strings.Join(values, ", "))
			}
		}

		if len(res.temperatures) == 0 {
			return respond(codes.Content, "No temperatures recorded.")
		}
		return respond(codes.Content, FormatTemperature(res.temperatures[len(res.temperatures)-1]))

	case codes.PUT:
		temperature, err := strconv.ParseFloat(strings.TrimSpace(string(request.Payload)), 64)
		if err != nil {
			log.WithField("payload", string(request.Payload)).Debug("Refusing invalid temperature")
			return respond(codes.BadRequest, "Invalid temperature.")
		}

		res.temperatures = append(res.temperatures, temperature)
		log.WithField("temperature", temperature).Info("Temperature recorded")
		return respond(codes.Changed, "Temperature recorded.")

	default:
		return respond(codes.MethodNotAllowed, "Method not allowed.")
	}
}

func (res *resource) serveStatic(request *coap_codec.Message) Response {
	switch request.Code {
	case codes.GET:
		return respond(codes.Content, res.data)

	case codes.POST:
		res.data += "\n" + string(request.Payload)
		return respond(codes.Changed, "Data appended.")

	default:
		return respond(codes.MethodNotAllowed, "Method not allowed.")
	}
}

// create adds a static resource named by the last path segment below the creator. The caller holds the mutex.
func (tree *Tree) create(request *coap_codec.Message, segments []string) Response {
	if request.Code != codes.POST {
		return respond(codes.MethodNotAllowed, "Method not allowed.")
	}
	if len(segments) == 0 || segments[len(segments)-1] == "" {
		return respond(codes.BadRequest, "Missing resource name.")
	}

	name := segments[len(segments)-1]
	if _, exists := tree.resources[name]; exists {
		return respond(codes.Forbidden, "Resource already exists.")
	}

	tree.resources[name] = &resource{kind: StaticResource, data: string(request.Payload)}
	log.WithField("resource", name).Info("Created resource")
	return respond(codes.Created, "Resource '"+name+"' created.")
}

// FormatTemperature renders a temperature with the shortest exact representation, keeping a decimal point
// for whole numbers, e.g. 21.5 and 20.0.
func FormatTemperature(temperature float64) string {
	s := strconv.FormatFloat(temperature, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
