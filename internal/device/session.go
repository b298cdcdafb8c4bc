package device

import (
	"io"
	"os"
	"sync"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/logger"
)

const DefaultWriteTimeout = time.Second

// State is the connection state of a Session
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String implements the Stringer interface
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handle is an open device node
type Handle interface {
	io.Writer
	io.Closer
}

// Opener opens the node at path for writing
type Opener func(path string) (Handle, error)

// Finder locates the display to connect to
type Finder interface {
	Locate() (Descriptor, bool)
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithOpener replaces how device nodes are opened
func WithOpener(open Opener) SessionOption {
	return func(s *Session) {
		s.open = open
	}
}

// WithWriteTimeout bounds a single report write on handles that support
// deadlines. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.writeTimeout = d
	}
}

// withSleep replaces the pause between init reports
func withSleep(sleep func(time.Duration)) SessionOption {
	return func(s *Session) {
		s.sleep = sleep
	}
}

// Session owns at most one open display handle. It never retries on its
// own: a failed write demotes it to Disconnected and the caller decides
// when to Connect again. All methods are safe for concurrent use.
type Session struct {
	mu           sync.Mutex
	finder       Finder
	open         Opener
	writeTimeout time.Duration
	sleep        func(time.Duration)

	state  State
	handle Handle
	desc   Descriptor
}

// NewSession creates a disconnected Session
func NewSession(finder Finder, opts ...SessionOption) *Session {
	s := &Session{
		finder:       finder,
		open:         openNode,
		writeTimeout: DefaultWriteTimeout,
		sleep:        time.Sleep,
		state:        Disconnected,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func openNode(path string) (Handle, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	return file, nil
}

// Connect locates, opens and initializes the display. It is a no-op when
// already connected. On failure the session stays Disconnected and the
// error carries ErrDeviceNotFound, ErrInvalidProfile, ErrDeviceOpenFailed or
// ErrDeviceIOFailed.
func (s *Session) Connect() error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Connected {
		return nil
	}

	s.state = Connecting

	desc, ok := s.finder.Locate()
	if !ok {
		s.state = Disconnected
		return errFactory.New(ErrDeviceNotFound)
	}

	if desc.Profile == nil {
		s.state = Disconnected
		return errFactory.WithData(ErrInvalidProfile, desc.String())
	}
	if err := desc.Profile.Validate(); err != nil {
		s.state = Disconnected
		return errFactory.Wrap(ErrInvalidProfile, err)
	}

	handle, err := s.open(desc.Path)
	if err != nil {
		s.state = Disconnected
		return errFactory.Wrap(ErrDeviceOpenFailed, err).WithMessage("Failed to open " + desc.Path)
	}

	for _, frame := range desc.Profile.InitFrames() {
		if err := s.write(handle, frame); err != nil {
			_ = handle.Close()
			s.state = Disconnected
			return errFactory.Wrap(ErrDeviceIOFailed, err)
		}
		if desc.Profile.InitDelay > 0 {
			s.sleep(desc.Profile.InitDelay)
		}
	}

	s.handle = handle
	s.desc = desc
	s.state = Connected

	logger.Info().Str("device", desc.String()).Msg("Display connected")

	return nil
}

// Send writes one report. Any write error or short write closes the handle
// and demotes the session; the same handle is never retried.
func (s *Session) Send(report []byte) error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected {
		return errFactory.New(ErrDeviceNotConnected)
	}

	if err := s.write(s.handle, report); err != nil {
		logger.Warn().Str("device", s.desc.String()).Err(err).Msg("Display write failed, disconnecting")
		s.release()
		return errFactory.Wrap(ErrDeviceIOFailed, err)
	}

	return nil
}

func (s *Session) write(handle Handle, report []byte) error {
	if d, ok := handle.(deadliner); ok && s.writeTimeout > 0 {
		// Nodes the runtime cannot poll return ErrNoDeadline; write without.
		_ = d.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}

	n, err := handle.Write(report)
	if err != nil {
		return err
	}
	if n != len(report) {
		return io.ErrShortWrite
	}

	return nil
}

// Close releases the handle. It is safe to call in any state.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.release()
}

func (s *Session) release() error {
	var err error
	if s.handle != nil {
		err = s.handle.Close()
		logger.Debug().Str("device", s.desc.String()).Msg("Display handle closed")
	}

	s.handle = nil
	s.desc = Descriptor{}
	s.state = Disconnected

	return err
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Descriptor returns the connected display
func (s *Session) Descriptor() (Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.desc, s.state == Connected
}
