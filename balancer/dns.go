// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package balancer

import (
	"context"
	"net"
	"net/netip"
	"strconv"
)

// AddressFamilyAffinity controls which resolved addresses DNSDiscovery
// keeps, based on their address family.
type AddressFamilyAffinity int

const (
	// AllFamilies keeps every address.
	AllFamilies AddressFamilyAffinity = iota
	// PreferIPv4 keeps only IPv4 addresses when any are resolved.
	PreferIPv4
	// PreferIPv6 keeps only IPv6 addresses when any are resolved.
	PreferIPv6
)

// DNSDiscovery treats service names as DNS names. Each resolved address
// becomes one healthy instance. A service may be given as "host" or as
// "host:port"; without a port, the default port is used.
//
// net.Resolver does not expose record TTLs, so DNSDiscovery looks names up
// on every call. Wrap it with NewCachingDiscovery to poll at a fixed TTL.
type DNSDiscovery struct {
	resolver    *net.Resolver
	network     string
	defaultPort int
	affinity    AddressFamilyAffinity
}

var _ Discovery = (*DNSDiscovery)(nil)

// NewDNSDiscovery returns a DNS-backed Discovery. The network must be one
// of "ip", "ip4" or "ip6". A nil resolver uses net.DefaultResolver.
func NewDNSDiscovery(
	resolver *net.Resolver,
	network string,
	defaultPort int,
	affinity AddressFamilyAffinity,
) *DNSDiscovery {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &DNSDiscovery{
		resolver:    resolver,
		network:     network,
		defaultPort: defaultPort,
		affinity:    affinity,
	}
}

// ListInstances resolves service and returns one instance per address.
func (d *DNSDiscovery) ListInstances(ctx context.Context, service string) ([]Instance, error) {
	host, portText, err := net.SplitHostPort(service)
	port := d.defaultPort
	if err != nil {
		// Assume this is not a host:port pair.
		host = service
	} else if port, err = strconv.Atoi(portText); err != nil {
		return nil, err
	}
	addresses, err := d.resolver.LookupNetIP(ctx, d.network, host)
	if err != nil {
		return nil, err
	}
	addresses = filterFamily(addresses, d.affinity)
	instances := make([]Instance, len(addresses))
	for i, address := range addresses {
		instances[i] = Instance{
			Host:    address.Unmap().String(),
			Port:    port,
			Healthy: true,
		}
		instances[i].ID = instances[i].HostPort()
	}
	return instances, nil
}

func filterFamily(addresses []netip.Addr, affinity AddressFamilyAffinity) []netip.Addr {
	var keep func(netip.Addr) bool
	switch affinity {
	case PreferIPv4:
		keep = func(address netip.Addr) bool { return address.Is4() || address.Is4In6() }
	case PreferIPv6:
		keep = func(address netip.Addr) bool { return address.Is6() && !address.Is4In6() }
	case AllFamilies:
		return addresses
	default:
		return addresses
	}
	var filtered []netip.Addr
	for _, address := range addresses {
		if keep(address) {
			filtered = append(filtered, address)
		}
	}
	if len(filtered) == 0 {
		return addresses
	}
	return filtered
}
