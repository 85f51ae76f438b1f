// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/bfix/gospel/logger"
	"github.com/miekg/dns"
)

// ResolveSignalingAddress turns a configured signaling_address into a
// dialable transport.Channel spec ("tcp+host:port"). Addresses of the
// form "dns:///<name>" are resolved via an SRV lookup for
// "_fabric-signal._tcp.<name>"; every other form is returned
// unchanged, since it is already a transport.Channel spec.
func ResolveSignalingAddress(address string) (string, error) {
	name, ok := strings.CutPrefix(address, "dns:///")
	if !ok {
		return address, nil
	}
	_, addrs, err := net.LookupSRV("fabric-signal", "tcp", name)
	if err == nil && len(addrs) > 0 {
		target := strings.TrimSuffix(addrs[0].Target, ".")
		return fmt.Sprintf("tcp+%s:%d", target, addrs[0].Port), nil
	}
	logger.Printf(logger.WARN, "[config] net.LookupSRV failed for %q (%v), falling back to miekg/dns\n", name, err)
	return resolveSRVDirect(name)
}

// resolveSRVDirect queries a recursive resolver directly with
// miekg/dns, for environments where the system resolver does not
// expose SRV records (e.g. containers without /etc/resolv.conf SRV
// support).
func resolveSRVDirect(name string) (string, error) {
	query := fmt.Sprintf("_fabric-signal._tcp.%s", dns.Fqdn(name))
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(query), dns.TypeSRV)
	m.RecursionDesired = true

	in, err := dns.Exchange(m, "8.8.8.8:53")
	if err != nil {
		return "", fmt.Errorf("config: SRV lookup for %q failed: %w", name, err)
	}
	for _, rr := range in.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			return fmt.Sprintf("tcp+%s:%d", strings.TrimSuffix(srv.Target, "."), srv.Port), nil
		}
	}
	return "", fmt.Errorf("config: no SRV record found for %q", name)
}
