// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package aap

import (
	"fmt"
	"strings"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// LocalEndpoint returns the endpoint of agent agentID on the node nodeID,
// e.g. dtn://a.dtn/ and "snd" become dtn://a.dtn/snd.
func LocalEndpoint(nodeID bpv7.EndpointID, agentID string) (bpv7.EndpointID, error) {
	agentID = strings.Trim(agentID, "/")

	var eid string
	switch nodeID.EndpointType.(type) {
	case bpv7.DtnEndpoint:
		eid = fmt.Sprintf("dtn://%s/%s", nodeID.Authority(), agentID)
	case bpv7.IpnEndpoint:
		eid = fmt.Sprintf("ipn:%s.%s", nodeID.Authority(), agentID)
	default:
		return bpv7.EndpointID{}, fmt.Errorf("unsupported endpoint %v", nodeID)
	}

	return bpv7.NewEndpointID(eid)
}

// NodeEndpoint returns the node part of an endpoint, e.g. dtn://a.dtn/snd becomes dtn://a.dtn/.
func NodeEndpoint(eid bpv7.EndpointID) (bpv7.EndpointID, error) {
	switch eid.EndpointType.(type) {
	case bpv7.DtnEndpoint:
		return bpv7.NewEndpointID(fmt.Sprintf("dtn://%s/", eid.Authority()))
	case bpv7.IpnEndpoint:
		return bpv7.NewEndpointID(fmt.Sprintf("ipn:%s.0", eid.Authority()))
	default:
		return bpv7.EndpointID{}, fmt.Errorf("unsupported endpoint %v", eid)
	}
}

// ReplyEndpoint maps the source of a received ADU to the endpoint its node receives replies on,
// e.g. dtn://a.dtn/snd with agent "rec" becomes dtn://a.dtn/rec.
func ReplyEndpoint(source string, agentID string) (string, error) {
	src, err := bpv7.NewEndpointID(source)
	if err != nil {
		return "", err
	}

	node, err := NodeEndpoint(src)
	if err != nil {
		return "", err
	}

	reply, err := LocalEndpoint(node, agentID)
	if err != nil {
		return "", err
	}
	return reply.String(), nil
}
