// Package kcp frames protocol messages over a KCP stream with a 4-byte
// big-endian length prefix.
package kcp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport"
)

const MaxFrameSize = 64 * 1024

var ErrFrameTooLarge = errors.New("kcp: frame too large")

// Frames implements transport.FrameConn over any stream connection.
type Frames struct {
	conn      net.Conn
	r         *bufio.Reader
	writeWait time.Duration
}

func Wrap(conn net.Conn, writeWait time.Duration) *Frames {
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}
	return &Frames{conn: conn, r: bufio.NewReader(conn), writeWait: writeWait}
}

func (f *Frames) ReadFrame() ([]byte, error) {
	for {
		var length uint32
		if err := binary.Read(f.r, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		if length > MaxFrameSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
		}
		if length == 0 {
			continue
		}
		b := make([]byte, length)
		if _, err := io.ReadFull(f.r, b); err != nil {
			return nil, err
		}
		return b, nil
	}
}

func (f *Frames) WriteFrame(b []byte) error {
	if len(b) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b))
	}
	buf := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(buf, uint32(len(b)))
	copy(buf[4:], b)
	_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeWait))
	_, err := f.conn.Write(buf)
	return err
}

func (f *Frames) Close() error { return f.conn.Close() }

func tune(s *kcp.UDPSession) {
	s.SetStreamMode(true)
	s.SetNoDelay(1, 10, 2, 1)
	s.SetWindowSize(256, 256)
}

// Dial opens a KCP session to addr and starts a transport session over it.
func Dial(addr string, decode transport.Decoder, opt transport.Options, writeWait time.Duration) (*transport.Session, error) {
	conn, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	tune(conn)
	return transport.NewSession(Wrap(conn, writeWait), decode, opt), nil
}

type Listener struct {
	l *kcp.Listener
}

func Listen(addr string) (*Listener, error) {
	l, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	return &Listener{l: l}, nil
}

// Accept waits for the next client session.
func (l *Listener) Accept() (net.Conn, error) {
	s, err := l.l.AcceptKCP()
	if err != nil {
		return nil, err
	}
	tune(s)
	return s, nil
}

func (l *Listener) Close() error   { return l.l.Close() }
func (l *Listener) Addr() net.Addr { return l.l.Addr() }
