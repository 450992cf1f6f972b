package render

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the command buffer size of a channel widget.
const DefaultBuffer = 256

// Channel is a Widget that queues commands for a consumer such as Stream.
// Delivery is best effort: when the buffer is full the command is dropped
// and counted. It also forwards notifications, so it is a notify.Sink.
type Channel struct {
	encoder
	mu      sync.RWMutex
	ch      chan Command
	closed  bool
	dropped atomic.Uint64
	sent    atomic.Uint64
}

// NewChannel creates a channel widget; size <= 0 uses DefaultBuffer.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = DefaultBuffer
	}
	c := &Channel{ch: make(chan Command, size)}
	c.encoder = encoder{emit: c.send}
	return c
}

func (c *Channel) send(cmd Command) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.ch <- cmd:
		c.sent.Add(1)
	default:
		c.dropped.Add(1)
	}
}

// Commands returns the queue. It is closed by Close.
func (c *Channel) Commands() <-chan Command {
	return c.ch
}

// Close stops accepting commands and closes the queue. Safe to call twice.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Sent returns how many commands were queued.
func (c *Channel) Sent() uint64 { return c.sent.Load() }

// Dropped returns how many commands were dropped.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }

// Recorder is a Widget that keeps every command, for tests and debugging.
type Recorder struct {
	encoder
	mu   sync.Mutex
	cmds []Command
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.encoder = encoder{emit: r.record}
	return r
}

func (r *Recorder) record(cmd Command) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

// Ops returns the recorded operation names in order.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]Op, len(r.cmds))
	for i, c := range r.cmds {
		ops[i] = c.Op
	}
	return ops
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.cmds = nil
	r.mu.Unlock()
}
