package server

import (
	"sync"

	"github.com/temoto/atomic_clock"

	"github.com/loopdev/pidserver/pid"
)

// Sampler is the abstract sensor boundary: "read current process
// measurement". Real deployments bind it to an ADC or similar.
type Sampler interface {
	Read() (float64, error)
}

type SamplerFunc func() (float64, error)

func (f SamplerFunc) Read() (float64, error) { return f() }

// SimPlant is a first-order process model driven by the controller output:
// tau * dx/dt = gain*u - x. Default sampler so the daemon runs and the
// loop closes without any hardware attached.
type SimPlant struct {
	engine *pid.Controller
	gain   float64
	tau    float64

	lk   sync.Mutex
	x    float64
	last *atomic_clock.Clock
}

func NewSimPlant(engine *pid.Controller, gain, tau float64) *SimPlant {
	if gain == 0 {
		gain = 1
	}
	if tau <= 0 {
		tau = 1
	}
	return &SimPlant{
		engine: engine,
		gain:   gain,
		tau:    tau,
		last:   atomic_clock.Now(),
	}
}

func (p *SimPlant) Read() (float64, error) {
	u := p.engine.Snapshot().Output

	p.lk.Lock()
	defer p.lk.Unlock()
	now := atomic_clock.Now()
	dt := now.Sub(p.last).Seconds()
	p.last = now
	if dt > 0 {
		if dt > p.tau {
			dt = p.tau
		}
		p.x += (p.gain*u - p.x) * dt / p.tau
	}
	return p.x, nil
}
