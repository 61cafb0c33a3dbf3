package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"

	"github.com/loopdev/pidserver/helpers"
	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/server"
	"github.com/loopdev/pidserver/state"
)

var BuildVersion string = "unknown" // set by ldflags -X

func main() {
	flagConfig := flag.String("config", "pid-server.hcl", "")
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		// under systemd journal, timestamps are redundant
		log.SetFlags(log2.LServiceFlags)
	}
	log.Infof("hello")

	g := &state.Global{
		BuildVersion: BuildVersion,
		Log:          log,
	}
	cfg := state.MustReadConfigFile(*flagConfig, log)
	if err := g.Init(cfg); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	var sampler server.Sampler
	if cfg.Control.PlantSim {
		tau := helpers.IntMillisecondDefault(cfg.Control.PlantSimTauMs, time.Second)
		sampler = server.NewSimPlant(g.Engine, cfg.Control.PlantSimGain, tau.Seconds())
		log.Infof("control plant_sim enabled gain=%g tau=%v", cfg.Control.PlantSimGain, tau)
	}

	srv, err := server.New(server.Options{
		Log:               log,
		Engine:            g.Engine,
		Watchdog:          g.Watchdog,
		Tele:              g.Tele,
		ListenAddress:     cfg.Server.ListenAddress,
		TickInterval:      cfg.TickInterval(),
		TelemetryInterval: cfg.TelemetryInterval(),
		Sampler:           sampler,
		SampleInterval:    cfg.SampleInterval(),
	})
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	if err := srv.Start(); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	go helpers.AliveSub(g.Alive, srv.Alive())
	sdnotify(daemon.SdNotifyReady, log)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		log.Infof("signal %v, stopping", sig)
	case <-g.Alive.StopChan():
	}
	sdnotify(daemon.SdNotifyStopping, log)

	g.Stop()
	srv.Stop()
	g.Tele.Close()
	g.Alive.Wait()
	log.Infof("goodbye")
}

func sdnotify(s string, log *log2.Log) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
