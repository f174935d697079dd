package predict

import (
	"errors"
	"fmt"
)

var ErrTickNotIncreasing = errors.New("pending: tick not increasing")

// PendingLog is a ring-buffer deque of pending commands ordered by tick.
// Appends go to the newest end; the oldest entry is read and popped in O(1).
type PendingLog struct {
	buf  []PendingCommand
	head int
	n    int
}

func NewPendingLog(capacity int) *PendingLog {
	if capacity < 1 {
		capacity = 16
	}
	return &PendingLog{buf: make([]PendingCommand, capacity)}
}

func (l *PendingLog) Len() int { return l.n }

// Append adds cmd as the newest entry. tick must be strictly greater than the
// newest tick already held.
func (l *PendingLog) Append(tick uint32, cmd Command) error {
	if l.n > 0 {
		newest := l.buf[(l.head+l.n-1)%len(l.buf)]
		if tick <= newest.Tick {
			return fmt.Errorf("%w: %d after %d", ErrTickNotIncreasing, tick, newest.Tick)
		}
	}
	if l.n == len(l.buf) {
		l.grow()
	}
	l.buf[(l.head+l.n)%len(l.buf)] = PendingCommand{Tick: tick, Command: cmd}
	l.n++
	return nil
}

func (l *PendingLog) grow() {
	next := make([]PendingCommand, len(l.buf)*2)
	for i := 0; i < l.n; i++ {
		next[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	l.buf = next
	l.head = 0
}

func (l *PendingLog) PeekOldest() (PendingCommand, bool) {
	if l.n == 0 {
		return PendingCommand{}, false
	}
	return l.buf[l.head], true
}

func (l *PendingLog) PopOldest() (PendingCommand, bool) {
	if l.n == 0 {
		return PendingCommand{}, false
	}
	pc := l.buf[l.head]
	l.buf[l.head] = PendingCommand{}
	l.head = (l.head + 1) % len(l.buf)
	l.n--
	return pc, true
}

// All returns a copy of the log, oldest first.
func (l *PendingLog) All() []PendingCommand {
	out := make([]PendingCommand, l.n)
	for i := range out {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}
