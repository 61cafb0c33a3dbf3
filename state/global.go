// Package state owns configuration and the wiring of long-lived subsystems.
//
// The controller instance used to be a global in the original firmware;
// here it is owned by Global, passed by reference to the dispatcher and
// the telemetry pusher, lifetime tied to process start/teardown.
package state

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/pid"
	"github.com/loopdev/pidserver/tele"
	"github.com/loopdev/pidserver/watchdog"
)

const ContextKey = "run/state-global"

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Engine       *pid.Controller
	Log          *log2.Log
	Tele         tele.Sinker
	Watchdog     *watchdog.Watchdog
}

func NewContext(ctx context.Context, g *Global) context.Context {
	return context.WithValue(ctx, ContextKey, g)
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// Init builds the controller from config defaults and brings up telemetry.
// If Init fails, consider Global broken.
func (g *Global) Init(cfg *Config) error {
	g.Config = cfg
	if g.Alive == nil {
		g.Alive = alive.NewAlive()
	}
	if g.LogDebug() {
		g.Log.SetLevel(log2.LDebug)
	}
	g.Log.Infof("build version=%s", g.BuildVersion)

	g.Engine = pid.NewController()
	if err := g.applyPidDefaults(); err != nil {
		return errors.Annotate(err, "config pid")
	}

	g.Watchdog = watchdog.NewTimeout(cfg.NoMsgTimeout(), cfg.TickInterval(), g.Log)

	g.Tele = tele.New(cfg.Tele)
	if err := g.Tele.Init(g.Log, cfg.Tele); err != nil {
		return errors.Annotate(err, "tele")
	}
	return nil
}

func (g *Global) applyPidDefaults() error {
	p := &g.Config.Pid
	if err := g.Engine.SetGains(pid.Gains{Kp: p.Kp, Ki: p.Ki, Kd: p.Kd}); err != nil {
		return err
	}
	if err := g.Engine.SetSetpoint(p.Setpoint); err != nil {
		return err
	}
	if p.OutputMin != 0 || p.OutputMax != 0 {
		if err := g.Engine.SetOutputLimits(p.OutputMin, p.OutputMax); err != nil {
			return err
		}
	}
	if p.IntegralMin != 0 || p.IntegralMax != 0 {
		if err := g.Engine.SetIntegralLimits(p.IntegralMin, p.IntegralMax); err != nil {
			return err
		}
	}
	return nil
}

func (g *Global) LogDebug() bool { return g.Config != nil && g.Config.LogDebug }

func (g *Global) Error(err error) {
	if err == nil {
		return
	}
	g.Log.Error(errors.ErrorStack(err))
	if g.Tele != nil {
		g.Tele.Error(err)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}
