package domain

import (
	"net"
	"net/netip"
)

// ClientIP returns the address of the peer that opened the connection.
// Forwarding headers are ignored on purpose: the body and headers are
// client-controlled, the socket address is not.
func ClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// AnonymizeIP truncates an address to a coarse network prefix.
//
//	203.0.113.42 -> 203.0.113.0  (last octet zeroed)
//	2001:db8::1  -> 2001:db8::   (last 16-bit group zeroed)
//
// Input that is not an IP address is returned unchanged.
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	addr = addr.Unmap()

	bits := 128 - 16
	if addr.Is4() {
		bits = 24
	}

	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return ip
	}
	return prefix.Addr().String()
}
