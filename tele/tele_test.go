package tele

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/pid"
)

func TestNewDisabledIsStub(t *testing.T) {
	t.Parallel()
	s := New(Config{})
	require.NoError(t, s.Init(log2.NewTest(t, log2.LDebug), Config{}))
	// no-ops must be safe without a broker
	s.Snapshot(pid.Snapshot{Measurement: 1})
	s.Error(assert.AnError)
	s.Close()
}

func TestMqttInitValidatesConfig(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)

	c := Config{Enabled: true}
	err := New(c).Init(log, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id")

	c = Config{Enabled: true, ClientID: "pid1"}
	err = New(c).Init(log, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt_broker")

	c = Config{Enabled: true, ClientID: "pid1", MqttBroker: "tcp://127.0.0.1:1", TlsCaFile: "/does/not/exist"}
	err = New(c).Init(log, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls_ca_file")
}
