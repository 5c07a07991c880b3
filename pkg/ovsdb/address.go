package ovsdb

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrInvalidAddress is returned for an empty or malformed IP literal.
var ErrInvalidAddress = errors.New("invalid address")

// FormatAddress validates raw as an IP literal and formats it for use in a
// connection string. IPv6 literals are wrapped in brackets, IPv4 literals are
// returned as given.
func FormatAddress(raw string) (string, error) {
	addr, err := parseLiteral(raw)
	if err != nil {
		return "", err
	}
	if addr.Is4() {
		return raw, nil
	}
	return "[" + raw + "]", nil
}

func parseLiteral(raw string) (netip.Addr, error) {
	if raw == "" {
		return netip.Addr{}, fmt.Errorf("%w: empty literal", ErrInvalidAddress)
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return addr, nil
}

// WireFormat selects how the local address is written to the bound-address
// key.
type WireFormat uint8

const (
	// WireRaw publishes the unbracketed IP literal, e.g. "fd00::1".
	WireRaw WireFormat = iota
	// WireBracketed publishes the formatted literal, e.g. "[fd00::1]".
	WireBracketed
)

func (f WireFormat) String() string {
	switch f {
	case WireRaw:
		return "raw"
	case WireBracketed:
		return "bracketed"
	default:
		return fmt.Sprintf("WireFormat(%d)", uint8(f))
	}
}

// ParseWireFormat parses "raw" or "bracketed".
func ParseWireFormat(s string) (WireFormat, error) {
	switch strings.ToLower(s) {
	case "", "raw":
		return WireRaw, nil
	case "bracketed":
		return WireBracketed, nil
	}
	return 0, fmt.Errorf("unknown wire format %q", s)
}

// EncodeBoundAddress renders a validated IP literal for the wire.
func EncodeBoundAddress(raw string, f WireFormat) (string, error) {
	formatted, err := FormatAddress(raw)
	if err != nil {
		return "", err
	}
	if f == WireBracketed {
		return formatted, nil
	}
	return raw, nil
}

// DecodeBoundAddress reads a bound-address value published by a remote unit
// and returns it formatted. Both wire formats are accepted.
func DecodeBoundAddress(v string) (string, error) {
	if len(v) > 2 && v[0] == '[' && v[len(v)-1] == ']' {
		v = v[1 : len(v)-1]
	}
	return FormatAddress(v)
}
