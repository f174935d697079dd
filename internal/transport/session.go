// Package transport moves JSON protocol messages over a framed connection.
// Concrete framings live in the ws and kcp subpackages; both feed the same
// Session, which owns the bounded send queue and the reader/writer goroutines.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
)

var (
	ErrQueueFull = errors.New("transport: send queue full")
	ErrClosed    = errors.New("transport: closed")
)

// Conn is what the client runtime and the dev server talk to.
type Conn interface {
	Send(msg any) error
	Inbound() <-chan any
	Done() <-chan struct{}
	Err() error
	Close() error
}

// FrameConn reads and writes whole messages.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(b []byte) error
	Close() error
}

// Decoder turns one frame into a typed message.
type Decoder func(b []byte) (any, error)

type Options struct {
	SendQueue  int
	InboxQueue int
	Logger     *log.Logger
}

type Session struct {
	fc     FrameConn
	decode Decoder
	log    *log.Logger

	out   chan []byte
	inbox chan any
	done  chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

var _ Conn = (*Session)(nil)

// NewSession starts the reader and writer goroutines for fc.
func NewSession(fc FrameConn, decode Decoder, opt Options) *Session {
	if opt.SendQueue <= 0 {
		opt.SendQueue = 256
	}
	if opt.InboxQueue <= 0 {
		opt.InboxQueue = 256
	}
	logger := opt.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Session{
		fc:     fc,
		decode: decode,
		log:    logger,
		out:    make(chan []byte, opt.SendQueue),
		inbox:  make(chan any, opt.InboxQueue),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s
}

// Send encodes msg and queues it without blocking.
func (s *Session) Send(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.out <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// Inbound is closed once the connection is gone.
func (s *Session) Inbound() <-chan any { return s.inbox }

func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended; nil after a local Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Close() error {
	s.fail(nil)
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
	s.mu.Unlock()
	_ = s.fc.Close()
}

func (s *Session) readLoop() {
	defer close(s.inbox)
	for {
		b, err := s.fc.ReadFrame()
		if err != nil {
			s.fail(err)
			return
		}
		msg, err := s.decode(b)
		if err != nil {
			s.log.Printf("drop frame: %v", err)
			continue
		}
		select {
		case s.inbox <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case b := <-s.out:
			if err := s.fc.WriteFrame(b); err != nil {
				s.fail(err)
				return
			}
		}
	}
}
