package ingest

import (
	"fmt"
	"net/netip"
	"strings"
)

// AddressKind is the scope of a client's local address.
type AddressKind string

// Address kinds.
const (
	AddressPrivate     AddressKind = "private"
	AddressLoopback    AddressKind = "loopback"
	AddressLinkLocal   AddressKind = "link_local"
	AddressUniqueLocal AddressKind = "unique_local"
	AddressPublicIPv4  AddressKind = "public_ipv4"
	AddressPublicIPv6  AddressKind = "public_ipv6"
)

// NatType is the relationship between a client's local and public address.
type NatType string

// NAT types. Whether translation happened is decided by address equality;
// the translated variants only record the family of the local address.
const (
	NatNone              NatType = "nat_none"
	NatLocalToPublicIPv4 NatType = "nat_local_to_public_ipv4"
	NatLocalToPublicIPv6 NatType = "nat_local_to_public_ipv6"
)

// Default anonymization prefixes: the last octet of an IPv4 address and the
// last 80 bits of an IPv6 address are zeroed.
const (
	DefaultIPv4Prefix = 24
	DefaultIPv6Prefix = 48
)

// IPClassifier parses, anonymizes and classifies client addresses.
type IPClassifier struct {
	v4Prefix int
	v6Prefix int
}

// NewIPClassifier returns a classifier keeping the given number of leading
// bits when anonymizing IPv4 and IPv6 addresses.
func NewIPClassifier(v4Prefix, v6Prefix int) (*IPClassifier, error) {
	if v4Prefix < 0 || v4Prefix > 32 {
		return nil, fmt.Errorf("ipv4 prefix %d out of range", v4Prefix)
	}
	if v6Prefix < 0 || v6Prefix > 128 {
		return nil, fmt.Errorf("ipv6 prefix %d out of range", v6Prefix)
	}
	return &IPClassifier{v4Prefix: v4Prefix, v6Prefix: v6Prefix}, nil
}

// Parse parses a textual IPv4 or IPv6 address. IPv4-mapped IPv6 addresses
// are unmapped and zones are dropped.
func (c *IPClassifier) Parse(text string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(text))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidIPAddress, text)
	}
	return addr.Unmap().WithZone(""), nil
}

// Anonymize zeroes the host portion of addr. Anonymizing an already
// anonymized address returns it unchanged.
func (c *IPClassifier) Anonymize(addr netip.Addr) (netip.Addr, error) {
	if !addr.IsValid() {
		return netip.Addr{}, fmt.Errorf("%w: zero address", ErrInvalidIPAddress)
	}
	bits := c.v6Prefix
	if addr.Is4() {
		bits = c.v4Prefix
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", ErrInvalidIPAddress, err)
	}
	return prefix.Addr(), nil
}

// ClassifyType reports the scope of addr.
func (c *IPClassifier) ClassifyType(addr netip.Addr) AddressKind {
	switch {
	case addr.IsLoopback():
		return AddressLoopback
	case addr.IsLinkLocalUnicast():
		return AddressLinkLocal
	case addr.Is6() && addr.IsPrivate():
		return AddressUniqueLocal
	case addr.IsPrivate():
		return AddressPrivate
	case addr.Is4():
		return AddressPublicIPv4
	default:
		return AddressPublicIPv6
	}
}

// ClassifyNat classifies the translation between a local and a public
// address.
func (c *IPClassifier) ClassifyNat(local, public netip.Addr) NatType {
	if local == public {
		return NatNone
	}
	if local.Is4() {
		return NatLocalToPublicIPv4
	}
	return NatLocalToPublicIPv6
}
