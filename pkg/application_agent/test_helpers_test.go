// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package application_agent

import (
	"fmt"

	"pgregory.net/rapid"

	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/aap"
)

const testNodeNameRegexp = "[a-z][a-z0-9]{0,8}"
const testDemuxRegexp = "[a-z][a-z0-9]{0,8}"

func drawEndpoint(t *rapid.T, label string) bpv7.EndpointID {
	node := rapid.StringMatching(testNodeNameRegexp).Draw(t, fmt.Sprintf("%v node", label))
	demux := rapid.StringMatching(testDemuxRegexp).Draw(t, fmt.Sprintf("%v demux", label))
	return bpv7.MustNewEndpointID(fmt.Sprintf("dtn://%v/%v", node, demux))
}

func drawADU(t *rapid.T, destination bpv7.EndpointID, i int) *aap.BundleADU {
	payload := rapid.SliceOfN(rapid.Byte(), 1, 256).Draw(t, fmt.Sprintf("payload %v", i))
	return aap.NewBundleADU("dtn://sender/snd", destination.String(), payload)
}

// bankAgent is a minimal ApplicationAgent which queues deliveries in a MailboxBank.
type bankAgent struct {
	name    string
	bank    *MailboxBank
	stopped bool
}

func newBankAgent(name string) *bankAgent {
	return &bankAgent{name: name, bank: NewMailboxBank("", 0)}
}

func (agent *bankAgent) Name() string {
	return agent.name
}

func (agent *bankAgent) Endpoints() []bpv7.EndpointID {
	return agent.bank.RegisteredIDs()
}

func (agent *bankAgent) Deliver(adu *aap.BundleADU) error {
	return agent.bank.Deliver(adu)
}

func (agent *bankAgent) Start() error {
	return nil
}

func (agent *bankAgent) Shutdown() {
	agent.stopped = true
}
