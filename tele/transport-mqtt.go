package tele

import (
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/loopdev/pidserver/command"
	"github.com/loopdev/pidserver/helpers"
	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/pid"
)

const defaultNetworkTimeout = 30 * time.Second

// Topic layout follows the <client>/w/... device-writes convention:
// w/1s retained connection state byte, w/1t telemetry frames, w/1e errors.
type sinkMqtt struct {
	log     *log2.Log
	m       mqtt.Client
	timeout time.Duration

	topicState     string
	topicTelemetry string
	topicError     string
}

func (s *sinkMqtt) Init(log *log2.Log, c Config) error {
	s.log = log.Clone(log2.LInfo)
	if c.LogDebug {
		s.log.SetLevel(log2.LDebug)
	}
	if c.ClientID == "" {
		return errors.NotValidf("tele client_id empty")
	}
	if c.MqttBroker == "" {
		return errors.NotValidf("tele mqtt_broker empty")
	}

	mqttLog := s.log.Clone(log2.LDebug)
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if c.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	s.topicState = c.ClientID + "/w/1s"
	s.topicTelemetry = c.ClientID + "/w/1t"
	s.topicError = c.ClientID + "/w/1e"

	s.timeout = helpers.IntSecondDefault(c.NetworkTimeoutSec, defaultNetworkTimeout)
	if s.timeout < time.Second {
		s.timeout = time.Second
	}
	keepalive := helpers.IntSecondDefault(c.KeepaliveSec, s.timeout/2)

	tlsconf := new(tls.Config)
	if c.TlsCaFile != "" {
		cabytes, err := ioutil.ReadFile(c.TlsCaFile)
		if err != nil {
			return errors.Annotate(err, "tele tls_ca_file")
		}
		tlsconf.RootCAs = x509.NewCertPool()
		tlsconf.RootCAs.AppendCertsFromPEM(cabytes)
	}

	credFun := func() (string, string) { return c.ClientID, c.MqttPassword }
	opt := mqtt.NewClientOptions().
		AddBroker(c.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(s.topicState, []byte{0}, 1, true).
		SetCleanSession(true).
		SetClientID(c.ClientID).
		SetConnectTimeout(s.timeout * 3).
		SetCredentialsProvider(credFun).
		SetKeepAlive(keepalive).
		SetMaxReconnectInterval(s.timeout * 3).
		SetOrderMatters(false).
		SetPingTimeout(s.timeout).
		SetTLSConfig(tlsconf).
		SetWriteTimeout(s.timeout).
		SetOnConnectHandler(s.onConnect)
	s.m = mqtt.NewClient(opt)

	// connect in background, Init only validates config
	go func() {
		t := s.m.Connect()
		t.WaitTimeout(s.timeout * 3)
		if err := t.Error(); err != nil {
			s.log.Errorf("tele mqtt connect broker=%s err=%v", c.MqttBroker, err)
		}
	}()
	return nil
}

func (s *sinkMqtt) onConnect(_ mqtt.Client) {
	s.log.Debugf("tele mqtt connected")
	s.publish(s.topicState, 1, true, []byte{1})
}

func (s *sinkMqtt) Close() {
	if s.m == nil {
		return
	}
	s.publish(s.topicState, 1, true, []byte{0})
	s.m.Disconnect(uint(s.timeout / time.Millisecond))
}

// Snapshot mirrors the wire telemetry frame to the broker, fire and forget.
func (s *sinkMqtt) Snapshot(snap pid.Snapshot) {
	if !s.m.IsConnected() {
		return
	}
	s.publish(s.topicTelemetry, 0, true, command.TelemetryFrame(snap).Marshal())
}

func (s *sinkMqtt) Error(e error) {
	if e == nil || !s.m.IsConnected() {
		return
	}
	s.publish(s.topicError, 1, false, []byte(e.Error()))
}

func (s *sinkMqtt) publish(topic string, qos byte, retained bool, payload []byte) {
	t := s.m.Publish(topic, qos, retained, payload)
	go func() {
		t.WaitTimeout(s.timeout)
		if err := t.Error(); err != nil {
			s.log.Errorf("tele mqtt publish topic=%s err=%v", topic, err)
		}
	}()
}
