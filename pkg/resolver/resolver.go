// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package resolver maps the target host of a relayed CoAP request to a network address.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Network selects the address family requests are dispatched over.
type Network string

const (
	UDP4 Network = "udp4"
	UDP6 Network = "udp6"
)

func NetworkFromString(s string) (Network, error) {
	switch Network(strings.ToLower(s)) {
	case UDP4:
		return UDP4, nil
	case UDP6, "":
		return UDP6, nil
	default:
		return "", fmt.Errorf("unknown network %q, expected udp4 or udp6", s)
	}
}

// LookupFunc resolves a host name to its IP addresses.
type LookupFunc func(ctx context.Context, network, host string) ([]net.IP, error)

// Endpoint is a resolved CoAP target.
type Endpoint struct {
	Host    string
	IP      netip.Addr
	Port    uint16
	Network Network
}

// Address returns the endpoint in host:port notation, suitable for dialing.
func (ep Endpoint) Address() string {
	return net.JoinHostPort(ep.IP.String(), strconv.Itoa(int(ep.Port)))
}

func (ep Endpoint) String() string {
	return fmt.Sprintf("%v(%v)", ep.Host, ep.Address())
}

type cacheEntry struct {
	ip      netip.Addr
	expires time.Time
}

// Resolver resolves host names for one address family.
// "localhost" is answered with the family's loopback address without a lookup.
// Successful lookups are cached for the configured TTL.
type Resolver struct {
	network Network
	lookup  LookupFunc
	ttl     time.Duration

	rwMutex sync.RWMutex
	cache   map[string]cacheEntry
}

// NewResolver creates a Resolver for the given network. A nil lookup uses the system resolver.
// A ttl of zero disables caching.
func NewResolver(network Network, lookup LookupFunc, ttl time.Duration) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupIP
	}

	return &Resolver{
		network: network,
		lookup:  lookup,
		ttl:     ttl,
		cache:   make(map[string]cacheEntry),
	}
}

func (res *Resolver) Network() Network {
	return res.network
}

func (res *Resolver) loopback() netip.Addr {
	if res.network == UDP4 {
		return netip.AddrFrom4([4]byte{127, 0, 0, 1})
	}
	return netip.IPv6Loopback()
}

// Resolve returns the endpoint for host and port.
// Returns a ResolutionError if host has no address of the configured family.
func (res *Resolver) Resolve(ctx context.Context, host string, port uint16) (Endpoint, error) {
	endpoint := Endpoint{Host: host, Port: port, Network: res.network}

	if strings.EqualFold(host, "localhost") {
		endpoint.IP = res.loopback()
		return endpoint, nil
	}

	if ip, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if !res.matchesFamily(ip) {
			return Endpoint{}, NewResolutionError(host, fmt.Errorf("address is not reachable over %v", res.network))
		}
		endpoint.IP = ip.Unmap()
		return endpoint, nil
	}

	if ip, ok := res.cached(host); ok {
		endpoint.IP = ip
		return endpoint, nil
	}

	lookupNetwork := "ip6"
	if res.network == UDP4 {
		lookupNetwork = "ip4"
	}

	ips, err := res.lookup(ctx, lookupNetwork, host)
	if err != nil {
		log.WithFields(log.Fields{
			"host":  host,
			"error": err,
		}).Debug("Host lookup failed")
		return Endpoint{}, NewResolutionError(host, err)
	}

	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok || !res.matchesFamily(addr) {
			continue
		}
		endpoint.IP = addr.Unmap()
		res.store(host, endpoint.IP)
		return endpoint, nil
	}

	return Endpoint{}, NewResolutionError(host, fmt.Errorf("no %v address found", res.network))
}

func (res *Resolver) matchesFamily(ip netip.Addr) bool {
	if res.network == UDP4 {
		return ip.Is4() || ip.Is4In6()
	}
	return ip.Is6() && !ip.Is4In6()
}

func (res *Resolver) cached(host string) (netip.Addr, bool) {
	if res.ttl <= 0 {
		return netip.Addr{}, false
	}

	res.rwMutex.RLock()
	defer res.rwMutex.RUnlock()

	entry, ok := res.cache[strings.ToLower(host)]
	if !ok || time.Now().After(entry.expires) {
		return netip.Addr{}, false
	}
	return entry.ip, true
}

func (res *Resolver) store(host string, ip netip.Addr) {
	if res.ttl <= 0 {
		return
	}

	res.rwMutex.Lock()
	defer res.rwMutex.Unlock()

	res.cache[strings.ToLower(host)] = cacheEntry{ip: ip, expires: time.Now().Add(res.ttl)}
}

// Purge drops expired cache entries.
func (res *Resolver) Purge() {
	res.rwMutex.Lock()
	defer res.rwMutex.Unlock()

	now := time.Now()
	purged := 0
	for host, entry := range res.cache {
		if now.After(entry.expires) {
			delete(res.cache, host)
			purged++
		}
	}

	if purged > 0 {
		log.WithField("entries", purged).Debug("Purged resolver cache")
	}
}

// CacheSize returns the number of cached host names.
func (res *Resolver) CacheSize() int {
	res.rwMutex.RLock()
	defer res.rwMutex.RUnlock()

	return len(res.cache)
}
