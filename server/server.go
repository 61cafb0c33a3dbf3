// Package server runs the three periodic activities around one controller:
// the UDP request loop, the telemetry pusher and the control loop.
//
// The request loop polls the socket with a read deadline of one scheduling
// tick; a deadline expiry is the "no message this tick" signal for the
// watchdog, exactly like the original firmware's FIONREAD poll + sleep.
// On an unrecoverable socket fault the endpoint is torn down and recreated,
// controller state survives untouched.
package server

import (
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"

	"github.com/loopdev/pidserver/command"
	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/pid"
	"github.com/loopdev/pidserver/tele"
	"github.com/loopdev/pidserver/watchdog"
	"github.com/loopdev/pidserver/wire"
)

type Options struct {
	Log      *log2.Log
	Engine   *pid.Controller
	Watchdog *watchdog.Watchdog
	Tele     tele.Sinker

	ListenAddress     string
	TickInterval      time.Duration
	TelemetryInterval time.Duration

	// Sampler is the process measurement boundary. nil disables the
	// control loop, Step can still be driven externally (tests).
	Sampler        Sampler
	SampleInterval time.Duration
}

type Server struct {
	alive    *alive.Alive
	log      *log2.Log
	engine   *pid.Controller
	wd       *watchdog.Watchdog
	tele     tele.Sinker
	dispatch *command.Dispatcher
	opt      Options
	lastRecv *atomic_clock.Clock

	connMu sync.Mutex
	conn   *net.UDPConn

	peerMu sync.Mutex
	peer   net.Addr
}

func New(opt Options) (*Server, error) {
	if opt.Engine == nil || opt.Watchdog == nil || opt.Log == nil {
		return nil, errors.NotValidf("server options missing engine/watchdog/log")
	}
	if opt.TickInterval <= 0 {
		return nil, errors.NotValidf("server tick=%v", opt.TickInterval)
	}
	if opt.TelemetryInterval <= 0 {
		return nil, errors.NotValidf("server telemetry interval=%v", opt.TelemetryInterval)
	}
	if opt.Sampler != nil && opt.SampleInterval <= 0 {
		return nil, errors.NotValidf("server sample interval=%v", opt.SampleInterval)
	}
	if opt.Tele == nil {
		opt.Tele = tele.NewStub()
	}
	s := &Server{
		alive:    alive.NewAlive(),
		log:      opt.Log,
		engine:   opt.Engine,
		wd:       opt.Watchdog,
		tele:     opt.Tele,
		dispatch: command.NewDispatcher(opt.Engine, opt.Log),
		opt:      opt,
		lastRecv: atomic_clock.New(),
	}
	return s, nil
}

// Start binds the socket and launches the worker goroutines.
func (s *Server) Start() error {
	if _, err := s.requireConn(); err != nil {
		return errors.Annotatef(err, "listen %s", s.opt.ListenAddress)
	}

	workers := 2
	if s.opt.Sampler != nil {
		workers++
	}
	if !s.alive.Add(workers) {
		return errors.Errorf("Start after Stop")
	}
	go s.requestLoop()
	go s.telemetryLoop()
	if s.opt.Sampler != nil {
		go s.controlLoop()
	}
	s.log.Infof("server listening on %s tick=%v", s.Addr(), s.opt.TickInterval)
	return nil
}

func (s *Server) Alive() *alive.Alive { return s.alive }

func (s *Server) Stop() {
	s.alive.Stop()
	s.closeConn()
	s.alive.Wait()
}

// Addr returns the bound address, useful with listen_address=":0" in tests.
func (s *Server) Addr() net.Addr {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Server) SinceLastRecv() time.Duration { return atomic_clock.Since(s.lastRecv) }

func (s *Server) requireConn() (*net.UDPConn, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	if s.alive.IsStopping() || s.alive.IsFinished() {
		return nil, errors.Errorf("stopping")
	}
	addr, err := net.ResolveUDPAddr("udp", s.opt.ListenAddress)
	if err != nil {
		return nil, errors.Annotate(err, "resolve")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Annotate(err, "bind")
	}
	s.conn = conn
	return conn, nil
}

func (s *Server) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Server) setPeer(a net.Addr) {
	s.peerMu.Lock()
	s.peer = a
	s.peerMu.Unlock()
}

// Peer is the source address of the most recent request, telemetry target.
func (s *Server) Peer() net.Addr {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	return s.peer
}

func (s *Server) requestLoop() {
	defer s.alive.Done()
	buf := make([]byte, 64)
	stopch := s.alive.StopChan()

	for s.alive.IsRunning() {
		conn, err := s.requireConn()
		if err != nil {
			s.log.Errorf("server endpoint recreate: %v", errors.ErrorStack(err))
			select {
			case <-time.After(s.opt.TickInterval):
			case <-stopch:
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.opt.TickInterval))
		n, from, err := conn.ReadFrom(buf)
		switch {
		case err == nil:
			s.handleDatagram(conn, buf[:n], from)

		case isTimeout(err):
			// one scheduling tick of genuine inactivity
			s.wd.Tick()

		default:
			if !s.alive.IsRunning() {
				return
			}
			// transport fault: recreate the endpoint, keep controller state
			s.log.Errorf("server recv fault: %v, recreating socket", err)
			s.tele.Error(errors.Annotate(err, "recv"))
			s.closeConn()
		}
	}
}

func (s *Server) handleDatagram(conn *net.UDPConn, b []byte, from net.Addr) {
	req, err := wire.Unmarshal(b)
	if err != nil {
		// malformed frame is dropped without response and does not
		// count as client activity
		s.log.Debugf("server drop malformed len=%d from=%s", len(b), from)
		return
	}

	resp := s.dispatch.Handle(req)
	if _, err := conn.WriteTo(resp.Marshal(), from); err != nil {
		s.log.Errorf("server send to=%s err=%v", from, err)
		s.tele.Error(errors.Annotate(err, "send"))
		return
	}
	s.lastRecv.SetNow()
	s.setPeer(from)
	s.wd.Touch()
}

func (s *Server) telemetryLoop() {
	defer s.alive.Done()
	t := time.NewTicker(s.opt.TelemetryInterval)
	defer t.Stop()
	stopch := s.alive.StopChan()

	for {
		select {
		case <-t.C:
			s.pushTelemetry()
		case <-stopch:
			return
		}
	}
}

func (s *Server) pushTelemetry() {
	if !s.wd.Enabled() {
		return
	}
	peer := s.Peer()
	if peer == nil {
		// nobody talked to us yet, nowhere to push
		return
	}
	snap := s.engine.Snapshot()

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn != nil {
		if _, err := conn.WriteTo(command.TelemetryFrame(snap).Marshal(), peer); err != nil {
			s.log.Debugf("telemetry send to=%s err=%v", peer, err)
		}
	}
	s.tele.Snapshot(snap)
}

func (s *Server) controlLoop() {
	defer s.alive.Done()
	t := time.NewTicker(s.opt.SampleInterval)
	defer t.Stop()
	stopch := s.alive.StopChan()
	prev := atomic_clock.Now()

	for {
		select {
		case <-t.C:
			now := atomic_clock.Now()
			dt := now.Sub(prev).Seconds()
			prev = now
			if dt <= 0 {
				continue
			}
			m, err := s.opt.Sampler.Read()
			if err != nil {
				s.log.Errorf("sampler: %v", err)
				continue
			}
			if _, err := s.engine.Step(m, dt); err != nil {
				s.log.Errorf("pid step m=%g dt=%g: %v", m, dt, err)
			}
		case <-stopch:
			return
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
