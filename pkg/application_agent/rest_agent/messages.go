// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rest_agent

// RestRegisterRequest describes a JSON to be POSTed to /register.
type RestRegisterRequest struct {
	EndpointId string `json:"endpoint_id"`
	Secret     string `json:"secret"`
}

// RestRegisterResponse describes a JSON response for /register.
type RestRegisterResponse struct {
	Error string `json:"error"`
	UUID  string `json:"uuid"`
}

// RestUnregisterRequest describes a JSON to be POSTed to /unregister.
type RestUnregisterRequest struct {
	UUID string `json:"uuid"`
}

// RestUnregisterResponse describes a JSON response for /unregister.
type RestUnregisterResponse struct {
	Error string `json:"error"`
}

// RestFetchRequest describes a JSON to be POSTed to /fetch.
type RestFetchRequest struct {
	UUID string `json:"uuid"`
}

// RestADU is the JSON representation of an ADU. The payload is base64 encoded.
type RestADU struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Payload     []byte `json:"payload"`
}

// RestFetchResponse describes a JSON response for /fetch.
type RestFetchResponse struct {
	Error string    `json:"error"`
	ADUs  []RestADU `json:"adus"`
}

// RestSendRequest describes a JSON to be POSTed to /send.
type RestSendRequest struct {
	UUID        string `json:"uuid"`
	Destination string `json:"destination"`
	Payload     []byte `json:"payload"`
}

// RestSendResponse describes a JSON response for /send.
type RestSendResponse struct {
	Error    string `json:"error"`
	BundleID string `json:"bundle_id"`
}

// RestStatusResponse describes the JSON returned by GET /status.
type RestStatusResponse struct {
	NodeID    string   `json:"node_id"`
	Endpoints []string `json:"endpoints"`
}
