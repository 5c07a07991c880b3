package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/netbind"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UNIT_ID", "ovn-central/0")
	t.Setenv("RELATION_ID", "ovsdb-peer:0")
	t.Setenv("ETCD_ENDPOINTS", "http://10.0.0.1:2379,http://10.0.0.2:2379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint != "ovsdb-peer" || cfg.Role != "peer" || cfg.Bus != BusEtcd {
		t.Fatalf("defaults = %+v", cfg)
	}
	if diff := cmp.Diff([]string{"http://10.0.0.1:2379", "http://10.0.0.2:2379"}, cfg.EtcdEndpoints); diff != "" {
		t.Fatalf("etcd endpoints (-want +got):\n%s", diff)
	}
	if cfg.EtcdLeaseTTL != 10 || cfg.EtcdDialTimeout != 5*time.Second || cfg.ResyncInterval != 30*time.Second {
		t.Fatalf("timings = %+v", cfg)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}

	tc, err := cfg.TrackerConfig()
	if err != nil {
		t.Fatalf("TrackerConfig: %v", err)
	}
	if diff := cmp.Diff(ovsdb.PeerConfig("ovsdb-peer"), tc); diff != "" {
		t.Fatalf("tracker config (-want +got):\n%s", diff)
	}
}

func TestLoad_GossipClient(t *testing.T) {
	t.Setenv("UNIT_ID", "ovn-chassis/3")
	t.Setenv("OVSDB_ENDPOINT", "ovsdb")
	t.Setenv("OVSDB_ROLE", "client")
	t.Setenv("OVSDB_SCHEME", "tcp")
	t.Setenv("OVSDB_WIRE_FORMAT", "bracketed")
	t.Setenv("BUS", "gossip")
	t.Setenv("RELATION_ID", "ovsdb:4")
	t.Setenv("GOSSIP_SEEDS", "10.0.0.1:7946,10.0.0.2:7946")
	t.Setenv("EXPECTED_UNITS", "ovn-central/0,ovn-central/1,ovn-central/2")
	t.Setenv("BIND_ADDRESSES", "10.0.0.9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tc, err := cfg.TrackerConfig()
	if err != nil {
		t.Fatalf("TrackerConfig: %v", err)
	}
	if tc.Scheme != "tcp" || tc.WireFormat != ovsdb.WireBracketed || tc.Quorum != ovsdb.RelatedUnitQuorum {
		t.Fatalf("tracker config = %+v", tc)
	}
	if tc.Ports != ovsdb.ClientPorts {
		t.Fatalf("ports = %+v, want client ports", tc.Ports)
	}

	oracle, ok := cfg.StaticOracle(tc)
	if !ok {
		t.Fatal("no static oracle for EXPECTED_UNITS")
	}
	if diff := cmp.Diff(map[string][]string{"ovsdb": {"ovn-central/0", "ovn-central/1", "ovn-central/2"}}, oracle.Related); diff != "" {
		t.Fatalf("related (-want +got):\n%s", diff)
	}
	if len(oracle.Peers) != 0 {
		t.Fatalf("peers = %v, want none", oracle.Peers)
	}

	if _, ok := cfg.Binder().(netbind.StaticBinder); !ok {
		t.Fatalf("Binder = %T, want StaticBinder", cfg.Binder())
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Endpoint:      "ovsdb-peer",
		Role:          "observer",
		WireFormat:    "raw",
		Bus:           BusGossip,
		BindAddresses: []string{"10.0.0.1"},
		BindTemplate:  "{{ GetPrivateIP }}",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{
		"UNIT_ID is required",
		`unknown role "observer"`,
		"RELATION_ID is required with the gossip bus",
		"EXPECTED_UNITS is required with the gossip bus",
		"mutually exclusive",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Validate() = %q, missing %q", err, want)
		}
	}

	cfg = &Config{UnitID: "u/0", Endpoint: "e", Role: "peer", WireFormat: "raw", Bus: "kafka"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), `unknown BUS "kafka"`) {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestBinderSelection(t *testing.T) {
	cfg := &Config{BindTemplate: "{{ GetPrivateIP }}"}
	if _, ok := cfg.Binder().(netbind.TemplateBinder); !ok {
		t.Fatalf("Binder = %T, want TemplateBinder", cfg.Binder())
	}
	cfg = &Config{BindInterfaces: []string{"eth1"}}
	b, ok := cfg.Binder().(netbind.InterfaceBinder)
	if !ok || len(b.Interfaces) != 1 || b.Interfaces[0] != "eth1" {
		t.Fatalf("Binder = %#v, want InterfaceBinder on eth1", cfg.Binder())
	}
}

func TestStaticOracle_PeerQuorum(t *testing.T) {
	cfg := &Config{ExpectedUnits: []string{"a/0", "a/1"}}
	oracle, ok := cfg.StaticOracle(ovsdb.PeerConfig("ovsdb-peer"))
	if !ok {
		t.Fatal("no oracle")
	}
	if diff := cmp.Diff([]string{"a/0", "a/1"}, oracle.Peers); diff != "" {
		t.Fatalf("peers (-want +got):\n%s", diff)
	}
	if _, ok := (&Config{}).StaticOracle(ovsdb.PeerConfig("ovsdb-peer")); ok {
		t.Fatal("oracle without EXPECTED_UNITS")
	}
}
