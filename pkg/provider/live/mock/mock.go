// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out a controlled Conn. Use
// Conn to inject inbound events and inspect the packets the caller sent.
//
// Example:
//
//	conn := mock.NewConn()
//	p := &mock.Provider{Conn: conn}
//	c, _ := p.Connect(ctx, cfg)
//	conn.Emit(live.Event{Kind: live.EventTurnComplete})
package mock

import (
	"context"
	"sync"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/provider/live"
)

// Compile-time interface assertions.
var (
	_ live.Provider = (*Provider)(nil)
	_ live.Conn     = (*Conn)(nil)
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Conn is returned by Connect. If nil, Connect returns a fresh Conn.
	Conn live.Conn

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Block, if non-nil, makes Connect wait until it is closed or ctx is
	// done. A cancelled ctx makes Connect return ctx.Err().
	Block chan struct{}

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities live.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Conn, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Conn, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Conn != nil {
		return p.Conn, nil
	}
	return NewConn(), nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() live.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Conn is a mock implementation of live.Conn.
type Conn struct {
	mu sync.Mutex

	events    chan live.Event
	closed    bool
	endedOnce sync.Once
	err       error

	// SendAudioErr, if non-nil, is returned by every SendAudio call and the
	// packet is not recorded.
	SendAudioErr error

	// Sent records every accepted packet.
	Sent []audio.Packet

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// NewConn returns a Conn with a buffered event channel.
func NewConn() *Conn {
	return &Conn{events: make(chan live.Event, 64)}
}

// Emit queues ev on the event stream. It is a no-op once the stream ended.
func (c *Conn) Emit(ev live.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

// End closes the event stream as if the service hung up. A nil err
// simulates a normal close.
func (c *Conn) End(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(err)
}

func (c *Conn) endLocked(err error) {
	c.endedOnce.Do(func() {
		c.err = err
		c.closed = true
		close(c.events)
	})
}

// SendAudio records p.
func (c *Conn) SendAudio(p audio.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return live.ErrClosed
	}
	if c.SendAudioErr != nil {
		return c.SendAudioErr
	}
	c.Sent = append(c.Sent, p)
	return nil
}

// SetSendAudioErr changes SendAudioErr under the lock.
func (c *Conn) SetSendAudioErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SendAudioErr = err
}

// SentPackets returns a copy of the accepted packets.
func (c *Conn) SentPackets() []audio.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.Packet, len(c.Sent))
	copy(out, c.Sent)
	return out
}

// Events returns the event stream.
func (c *Conn) Events() <-chan live.Event { return c.events }

// Err returns the error passed to End, or nil.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the event stream normally and counts the call.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCount++
	c.endLocked(nil)
	return nil
}

// Closes returns how many times Close was called.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CloseCount
}
