package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

var (
	// ErrBind indicates the listening socket could not be bound. The
	// supervisor stays Stopped.
	ErrBind = errors.New("bind listener")
	// ErrAlreadyRunning is returned by Start on a supervisor that is not Stopped.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning is returned by Stop on a supervisor that is not Running.
	ErrNotRunning = errors.New("server not running")
)

// State is the supervisor lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	defaultRestartInitial = 100 * time.Millisecond
	defaultRestartMax     = 10 * time.Second
	maxTempAcceptDelay    = time.Second
)

// ConnHandler serves one accepted connection to completion.
type ConnHandler interface {
	Serve(ctx context.Context, conn net.Conn)
}

type listenFunc func(network, address string) (net.Listener, error)

// Supervisor owns the listening socket and dispatches every accepted
// connection to its own goroutine. If the accept loop fails while running, the
// supervisor rebinds the address with exponential backoff until Stop.
type Supervisor struct {
	addr     string
	handler  ConnHandler
	maxConns int

	restartInitial time.Duration
	restartMax     time.Duration
	listen         listenFunc

	log     logging.Logger
	metrics MetricsRecorder

	mu       sync.Mutex
	state    State
	ln       net.Listener
	stopCh   chan struct{}
	loopDone chan struct{}
	sem      chan struct{}

	conns sync.WaitGroup
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	Addr string
	// MaxConnections bounds concurrent handlers. When the bound is reached the
	// supervisor stops accepting until a handler finishes; pending clients wait
	// in the kernel backlog. Zero means unbounded.
	MaxConnections int
	RestartInitial time.Duration
	RestartMax     time.Duration
}

// NewSupervisor constructs a stopped supervisor.
func NewSupervisor(cfg SupervisorConfig, handler ConnHandler, log logging.Logger, metrics MetricsRecorder) *Supervisor {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.RestartInitial <= 0 {
		cfg.RestartInitial = defaultRestartInitial
	}
	if cfg.RestartMax < cfg.RestartInitial {
		cfg.RestartMax = defaultRestartMax
	}
	return &Supervisor{
		addr:           cfg.Addr,
		handler:        handler,
		maxConns:       cfg.MaxConnections,
		restartInitial: cfg.RestartInitial,
		restartMax:     cfg.RestartMax,
		listen:         net.Listen,
		log:            log,
		metrics:        metricsOrNoop(metrics),
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or nil when not running.
func (s *Supervisor) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil || s.state != StateRunning {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the listening socket and starts the accept loop. A bind failure
// leaves the supervisor Stopped and returns an error wrapping ErrBind; it is
// not retried.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return ErrAlreadyRunning
	}
	s.state = StateStarting

	ln, err := s.listen("tcp", s.addr)
	if err != nil {
		s.state = StateStopped
		s.log.Error(ctx, "failed to bind listener", logging.String("addr", s.addr), logging.Err(err))
		return fmt.Errorf("%w %s: %v", ErrBind, s.addr, err)
	}

	s.ln = ln
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.sem = nil
	if s.maxConns > 0 {
		s.sem = make(chan struct{}, s.maxConns)
	}
	s.state = StateRunning

	s.log.Info(ctx, "server listening", logging.String("addr", ln.Addr().String()))
	go s.supervise(context.WithoutCancel(ctx), ln, s.stopCh, s.loopDone, s.sem)
	return nil
}

// Stop closes the listener and waits for the accept loop to exit, then waits
// for in-flight handlers until ctx is done. Handlers are never cancelled; if
// ctx expires first they keep running and Stop returns ctx.Err().
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StateStopping
	close(s.stopCh)
	ln := s.ln
	loopDone := s.loopDone
	s.mu.Unlock()

	s.log.Info(ctx, "stopping server")
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn(ctx, "failed to close listener", logging.Err(err))
	}

	var err error
	select {
	case <-loopDone:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err == nil {
		done := make(chan struct{})
		go func() {
			s.conns.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
			s.log.Warn(ctx, "stop deadline reached with connections in flight")
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.ln = nil
	s.mu.Unlock()
	return err
}

func (s *Supervisor) stopping(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

func (s *Supervisor) supervise(ctx context.Context, ln net.Listener, stopCh <-chan struct{}, loopDone chan<- struct{}, sem chan struct{}) {
	defer close(loopDone)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.restartInitial
	bo.MaxInterval = s.restartMax
	bo.Reset()

	for {
		err := s.acceptLoop(ctx, ln, stopCh, sem, bo)
		if s.stopping(stopCh) {
			return
		}
		s.log.Error(ctx, "accept loop failed", logging.Err(err))
		s.metrics.AcceptLoopRestarted()

		ln = s.rebind(ctx, stopCh, bo)
		if ln == nil {
			return
		}
	}
}

// rebind binds the address again, waiting with backoff between attempts. It
// returns nil once Stop has been requested.
func (s *Supervisor) rebind(ctx context.Context, stopCh <-chan struct{}, bo *backoff.ExponentialBackOff) net.Listener {
	for {
		wait := bo.NextBackOff()
		timer := time.NewTimer(wait)
		select {
		case <-stopCh:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		ln, err := s.listen("tcp", s.addr)
		if err != nil {
			s.log.Warn(ctx, "failed to rebind listener", logging.String("addr", s.addr), logging.Duration("backoff", wait), logging.Err(err))
			continue
		}

		s.mu.Lock()
		if s.state != StateRunning {
			s.mu.Unlock()
			_ = ln.Close()
			return nil
		}
		s.ln = ln
		s.mu.Unlock()

		s.log.Info(ctx, "accept loop restarted", logging.String("addr", ln.Addr().String()))
		return ln
	}
}

func (s *Supervisor) acceptLoop(ctx context.Context, ln net.Listener, stopCh <-chan struct{}, sem chan struct{}, bo *backoff.ExponentialBackOff) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("accept loop panic: %v", r)
			_ = ln.Close()
		}
	}()

	var tempDelay time.Duration
	for {
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-stopCh:
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if sem != nil {
				<-sem
			}
			if s.stopping(stopCh) {
				return nil
			}
			if isTemporary(err) {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > maxTempAcceptDelay {
					tempDelay = maxTempAcceptDelay
				}
				s.log.Warn(ctx, "temporary accept error", logging.Duration("retry_in", tempDelay), logging.Err(err))
				time.Sleep(tempDelay)
				continue
			}
			_ = ln.Close()
			return err
		}
		tempDelay = 0
		bo.Reset()

		s.dispatch(ctx, conn, sem)
	}
}

func (s *Supervisor) dispatch(ctx context.Context, conn net.Conn, sem chan struct{}) {
	s.conns.Add(1)
	s.metrics.ConnectionOpened()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error(ctx, "connection handler panicked", logging.Any("panic", r))
				_ = conn.Close()
			}
			if sem != nil {
				<-sem
			}
			s.metrics.ConnectionClosed()
			s.conns.Done()
		}()
		s.handler.Serve(ctx, conn)
	}()
}

func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}
