// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sensor

import (
	"strings"
	"testing"

	"github.com/plgd-dev/go-coap/v3/message/codes"
	"pgregory.net/rapid"

	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
)

type fataler interface {
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

func request(t fataler, code codes.Code, uri, payload string) *coap_codec.Message {
	req, err := coap_codec.NewRequest(code, uri, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func expect(t fataler, response Response, code codes.Code, payload string) {
	if response.Code != code || string(response.Payload) != payload {
		t.Fatalf("Expected %v %q, got %v %q", code, payload, response.Code, string(response.Payload))
	}
}

func TestTree_Temperature(t *testing.T) {
	tree := NewTree(false)

	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/temperature", "")),
		codes.Content, "No temperatures recorded.")
	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/temperature?all", "")),
		codes.Content, "")

	expect(t, tree.Serve(request(t, codes.PUT, "coap://localhost/temperature", "21.5")),
		codes.Changed, "Temperature recorded.")
	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/temperature", "")),
		codes.Content, "21.5")

	expect(t, tree.Serve(request(t, codes.PUT, "coap://localhost/temperature", "20")),
		codes.Changed, "Temperature recorded.")
	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/temperature?all", "")),
		codes.Content, "21.5, 20.0")

	expect(t, tree.Serve(request(t, codes.PUT, "coap://localhost/temperature", "abc")),
		codes.BadRequest, "Invalid temperature.")
	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/temperature", "")),
		codes.Content, "20.0")

	expect(t, tree.Serve(request(t, codes.DELETE, "coap://localhost/temperature", "")),
		codes.MethodNotAllowed, "Method not allowed.")
	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/humidity", "")),
		codes.NotFound, "Resource not found.")
}

func TestTree_TemperatureHistory(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		tree := NewTree(false)
		values := rapid.SliceOfN(rapid.Float64Range(-80, 60), 1, 20).Draw(tr, "temperatures")

		formatted := make([]string, len(values))
		for i, value := range values {
			formatted[i] = FormatTemperature(value)
			response := tree.Serve(request(tr, codes.PUT, "coap://localhost/temperature", formatted[i]))
			if response.Code != codes.Changed {
				tr.Fatalf("PUT %v answered with %v", formatted[i], response.Code)
			}
		}

		all := tree.Serve(request(tr, codes.GET, "coap://localhost/temperature?all", ""))
		if string(all.Payload) != strings.Join(formatted, ", ") {
			tr.Fatalf("Expected %q, got %q", strings.Join(formatted, ", "), string(all.Payload))
		}

		last := tree.Serve(request(tr, codes.GET, "coap://localhost/temperature", ""))
		if string(last.Payload) != formatted[len(formatted)-1] {
			tr.Fatalf("Expected %q, got %q", formatted[len(formatted)-1], string(last.Payload))
		}
	})
}

func TestTree_Creator(t *testing.T) {
	if _, ok := NewTree(false).resources[CreatorPath]; ok {
		t.Fatal("Creator present without being requested")
	}

	tree := NewTree(true)

	expect(t, tree.Serve(request(t, codes.POST, "coap://localhost/create/notes", "first")),
		codes.Created, "Resource 'notes' created.")
	expect(t, tree.Serve(request(t, codes.POST, "coap://localhost/create/notes", "again")),
		codes.Forbidden, "Resource already exists.")
	expect(t, tree.Serve(request(t, codes.POST, "coap://localhost/create/temperature", "")),
		codes.Forbidden, "Resource already exists.")
	expect(t, tree.Serve(request(t, codes.POST, "coap://localhost/create", "")),
		codes.BadRequest, "Missing resource name.")
	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/create/x", "")),
		codes.MethodNotAllowed, "Method not allowed.")

	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/notes", "")),
		codes.Content, "first")
	expect(t, tree.Serve(request(t, codes.POST, "coap://localhost/notes", "second")),
		codes.Changed, "Data appended.")
	expect(t, tree.Serve(request(t, codes.GET, "coap://localhost/notes", "")),
		codes.Content, "first\nsecond")
	expect(t, tree.Serve(request(t, codes.PUT, "coap://localhost/notes", "x")),
		codes.MethodNotAllowed, "Method not allowed.")
}

func TestFormatTemperature(t *testing.T) {
	tests := map[float64]string{
		21.5:  "21.5",
		20:    "20.0",
		-3:    "-3.0",
		0.125: "0.125",
	}
	for value, expected := range tests {
		if s := FormatTemperature(value); s != expected {
			t.Fatalf("Expected %v, got %v", expected, s)
		}
	}
}
