// Package netbind resolves the addresses an endpoint is bound to on the local
// host. It provides the NetworkBinder implementations used outside of a juju
// hook environment.
package netbind

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	sockaddr "github.com/hashicorp/go-sockaddr"
	"github.com/hashicorp/go-sockaddr/template"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

var ErrNoAddress = errors.New("no usable bind address")

// StaticBinder reports a fixed list of addresses for every endpoint.
type StaticBinder struct {
	Addresses []string
}

var _ ovsdb.NetworkBinder = StaticBinder{}

func (b StaticBinder) NetworkGet(context.Context, string, string) (ovsdb.NetworkInfo, error) {
	if len(b.Addresses) == 0 {
		return ovsdb.NetworkInfo{}, ErrNoAddress
	}
	bind := ovsdb.BindAddress{}
	for _, a := range b.Addresses {
		bind.Addresses = append(bind.Addresses, ovsdb.InterfaceAddress{Address: a})
	}
	return ovsdb.NetworkInfo{
		BindAddresses:    []ovsdb.BindAddress{bind},
		IngressAddresses: slices.Clone(b.Addresses),
	}, nil
}

// InterfaceBinder reports the addresses of the host's up interfaces.
// Link-local IPv6 addresses are never reported.
type InterfaceBinder struct {
	// Interfaces restricts the result to the named interfaces, in that
	// order. Empty means every interface.
	Interfaces      []string
	IncludeLoopback bool
}

var _ ovsdb.NetworkBinder = InterfaceBinder{}

func (b InterfaceBinder) NetworkGet(context.Context, string, string) (ovsdb.NetworkInfo, error) {
	ifAddrs, err := sockaddr.GetAllInterfaces()
	if err != nil {
		return ovsdb.NetworkInfo{}, fmt.Errorf("failed to list interfaces: %w", err)
	}
	info := collect(ifAddrs, b.Interfaces, b.IncludeLoopback)
	if len(info.BindAddresses) == 0 {
		return ovsdb.NetworkInfo{}, ErrNoAddress
	}
	return info, nil
}

// TemplateBinder evaluates a go-sockaddr template, such as
// `{{ GetPrivateIP }}` or `{{ GetAllInterfaces | include "name" "eth1" | attr "address" }}`,
// and reports the resulting addresses.
type TemplateBinder struct {
	Template string
}

var _ ovsdb.NetworkBinder = TemplateBinder{}

func (b TemplateBinder) NetworkGet(ctx context.Context, endpoint, relationID string) (ovsdb.NetworkInfo, error) {
	out, err := template.Parse(b.Template)
	if err != nil {
		return ovsdb.NetworkInfo{}, fmt.Errorf("failed to evaluate bind template: %w", err)
	}
	return StaticBinder{Addresses: strings.Fields(out)}.NetworkGet(ctx, endpoint, relationID)
}

func collect(ifAddrs sockaddr.IfAddrs, names []string, includeLoopback bool) ovsdb.NetworkInfo {
	var (
		info  ovsdb.NetworkInfo
		index = map[string]int{}
	)
	for _, ifa := range ifAddrs {
		if ifa.Flags&net.FlagUp == 0 {
			continue
		}
		if ifa.Flags&net.FlagLoopback != 0 && !includeLoopback {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, ifa.Name) {
			continue
		}
		ip, cidr, ok := ipOf(ifa.SockAddr)
		if !ok || ip.IsLinkLocalUnicast() {
			continue
		}

		i, seen := index[ifa.Name]
		if !seen {
			i = len(info.BindAddresses)
			index[ifa.Name] = i
			bind := ovsdb.BindAddress{InterfaceName: ifa.Name}
			if len(ifa.HardwareAddr) > 0 {
				bind.MACAddress = ifa.HardwareAddr.String()
			}
			info.BindAddresses = append(info.BindAddresses, bind)
		}
		info.BindAddresses[i].Addresses = append(info.BindAddresses[i].Addresses, ovsdb.InterfaceAddress{
			Address: ip.String(),
			CIDR:    cidr,
		})
		info.IngressAddresses = append(info.IngressAddresses, ip.String())
	}

	if len(names) > 0 {
		slices.SortStableFunc(info.BindAddresses, func(a, b ovsdb.BindAddress) int {
			return slices.Index(names, a.InterfaceName) - slices.Index(names, b.InterfaceName)
		})
	}
	return info
}

func ipOf(sa sockaddr.SockAddr) (net.IP, string, bool) {
	switch v := sa.(type) {
	case sockaddr.IPv4Addr:
		return *v.NetIP(), v.NetIPNet().String(), true
	case sockaddr.IPv6Addr:
		return *v.NetIP(), v.NetIPNet().String(), true
	default:
		return nil, "", false
	}
}
