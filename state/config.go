package state

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/loopdev/pidserver/helpers"
	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/tele"
)

const (
	DefaultListenAddress     = ":1200"
	DefaultTickInterval      = 20 * time.Millisecond
	DefaultNoMsgTimeout      = 15 * time.Second
	DefaultSampleInterval    = 20 * time.Millisecond
	DefaultTelemetryInterval = 200 * time.Millisecond
)

type Config struct { //nolint:maligned
	Server struct {
		ListenAddress   string `hcl:"listen_address"`
		TickIntervalMs  int    `hcl:"tick_interval_ms"`
		NoMsgTimeoutSec int    `hcl:"no_msg_timeout_sec"`
	}
	Control struct {
		SampleIntervalMs    int     `hcl:"sample_interval_ms"`
		TelemetryIntervalMs int     `hcl:"telemetry_interval_ms"`
		PlantSim            bool    `hcl:"plant_sim"`
		PlantSimGain        float64 `hcl:"plant_sim_gain"`
		PlantSimTauMs       int     `hcl:"plant_sim_tau_ms"`
	}
	Pid struct {
		Setpoint float64 `hcl:"setpoint"`
		Kp       float64 `hcl:"kp"`
		Ki       float64 `hcl:"ki"`
		Kd       float64 `hcl:"kd"`
		// limits are applied only when min/max pair differs, zero value
		// pair means keep the wide-open default
		OutputMin   float64 `hcl:"output_min"`
		OutputMax   float64 `hcl:"output_max"`
		IntegralMin float64 `hcl:"integral_min"`
		IntegralMax float64 `hcl:"integral_max"`
	}
	Tele     tele.Config
	LogDebug bool `hcl:"log_debug"`
}

func (c *Config) TickInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Server.TickIntervalMs, DefaultTickInterval)
}

func (c *Config) NoMsgTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Server.NoMsgTimeoutSec, DefaultNoMsgTimeout)
}

func (c *Config) SampleInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Control.SampleIntervalMs, DefaultSampleInterval)
}

func (c *Config) TelemetryInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Control.TelemetryIntervalMs, DefaultTelemetryInterval)
}

func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.NoMsgTimeout() < c.TickInterval() {
		return errors.NotValidf("server no_msg_timeout=%v < tick_interval=%v", c.NoMsgTimeout(), c.TickInterval())
	}
	return nil
}

func ReadConfig(r io.Reader, log *log2.Log) (*Config, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := new(Config)
	if err = hcl.Unmarshal(b, c); err != nil {
		return nil, errors.Annotate(err, "config parse")
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func ReadConfigFile(path string, log *log2.Log) (*Config, error) {
	if pathAbs, err := filepath.Abs(path); err != nil {
		log.Errorf("filepath.Abs(%s) error=%v", path, err)
	} else {
		path = pathAbs
	}
	log.Debugf("reading config file %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadConfig(f, log)
}

func MustReadConfig(r io.Reader, log *log2.Log) *Config {
	c, err := ReadConfig(r, log)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func MustReadConfigFile(path string, log *log2.Log) *Config {
	c, err := ReadConfigFile(path, log)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
