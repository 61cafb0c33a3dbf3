// Package tele mirrors controller telemetry to a remote broker.
//
// This is a best-effort side channel next to the UDP push stream: the
// request/response protocol never depends on it. Sinker contract:
// - Init fails only on invalid config, network issues are retried in background
// - Snapshot/Error never block on the network
// - Close waits for a clean disconnect, bounded by the network timeout
package tele

import (
	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/pid"
)

type Config struct { //nolint:maligned
	Enabled           bool   `hcl:"enable"`
	ClientID          string `hcl:"client_id"`
	LogDebug          bool   `hcl:"log_debug"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	MqttBroker        string `hcl:"mqtt_broker"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	MqttPassword      string `hcl:"mqtt_password"` // secret
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	TlsCaFile         string `hcl:"tls_ca_file"`
}

type Sinker interface {
	Init(*log2.Log, Config) error
	Close()
	Snapshot(pid.Snapshot)
	Error(error)
}

// New returns the MQTT sink when enabled, otherwise a no-op stub.
func New(c Config) Sinker {
	if !c.Enabled {
		return stub{}
	}
	return &sinkMqtt{}
}

func NewStub() Sinker { return stub{} }

type stub struct{}

func (stub) Init(*log2.Log, Config) error { return nil }
func (stub) Close()                       {}
func (stub) Snapshot(pid.Snapshot)        {}
func (stub) Error(error)                  {}
