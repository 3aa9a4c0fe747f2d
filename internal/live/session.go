package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/makanmate/makanmate/internal/observe"
	"github.com/makanmate/makanmate/pkg/audio"
	providerlive "github.com/makanmate/makanmate/pkg/provider/live"
)

// Default device formats, matching what the live service expects and emits.
var (
	DefaultInputFormat  = audio.Format{SampleRate: 16000, Channels: 1}
	DefaultOutputFormat = audio.Format{SampleRate: 24000, Channels: 1}
)

// Option is a functional option for [New].
type Option func(*Session)

// WithObserver sets the receiver of status and transcript notifications.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSessionConfig sets the configuration sent to the live service during
// setup.
func WithSessionConfig(cfg providerlive.SessionConfig) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithInputFormat overrides the capture format. When unset the provider's
// advertised input format is used, falling back to [DefaultInputFormat].
func WithInputFormat(f audio.Format) Option {
	return func(s *Session) { s.input = f }
}

// WithOutputFormat overrides the playback format. When unset the provider's
// advertised output format is used, falling back to [DefaultOutputFormat].
func WithOutputFormat(f audio.Format) Option {
	return func(s *Session) { s.output = f }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics sets the metric instruments. The default is
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is a single live voice conversation. Connect, Disconnect, State and
// Err are safe for concurrent use; everything else runs on the session's own
// goroutine.
type Session struct {
	provider providerlive.Provider
	devices  audio.Devices
	observer Observer
	cfg      providerlive.SessionConfig
	input    audio.Format
	output   audio.Format
	log      *slog.Logger
	metrics  *observe.Metrics

	mu          sync.Mutex
	state       State
	err         error
	cancel      context.CancelFunc
	connectDone chan struct{}
	stop        chan struct{}
	done        chan struct{}
}

// New returns an idle Session that will talk to provider through devices.
func New(provider providerlive.Provider, devices audio.Devices, opts ...Option) *Session {
	s := &Session{
		provider: provider,
		devices:  devices,
		observer: ObserverFuncs{},
	}
	for _, opt := range opts {
		opt(s)
	}
	caps := provider.Capabilities()
	if s.input.SampleRate <= 0 {
		s.input = pickFormat(caps.InputFormat, DefaultInputFormat)
	}
	if s.output.SampleRate <= 0 {
		s.output = pickFormat(caps.OutputFormat, DefaultOutputFormat)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "live")
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

func pickFormat(advertised, fallback audio.Format) audio.Format {
	if advertised.SampleRate <= 0 {
		return fallback
	}
	if advertised.Channels <= 0 {
		advertised.Channels = 1
	}
	return advertised
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the reason the session ended in [StateError], or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Connect opens the microphone and speaker, dials the live service and waits
// for its setup acknowledgement. It is valid only in [StateIdle]; any other
// state yields [ErrInvalidState].
//
// On success the session is Open and the observer receives
// [StatusConnected]. On failure every acquired resource is released, the
// session moves to [StateError], the observer receives [StatusError] and a
// [*ConnectError] is returned. A Disconnect during Connect aborts it without
// an error notification.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, st)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	connectDone := make(chan struct{})
	defer close(connectDone)
	s.state = StateConnecting
	s.cancel = cancel
	s.connectDone = connectDone
	s.mu.Unlock()

	start := time.Now()
	capture, output, conn, stage, err := s.open(ctx)
	s.metrics.LiveConnectDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("status", statusAttr(err))))

	s.mu.Lock()
	if s.state != StateConnecting {
		// Disconnect ran while we were connecting and already reported it.
		s.mu.Unlock()
		if err == nil {
			s.release(capture, output, conn)
			return &ConnectError{Stage: "cancelled", Err: context.Canceled}
		}
		return &ConnectError{Stage: stage, Err: err}
	}
	if err != nil {
		cerr := &ConnectError{Stage: stage, Err: err}
		s.state = StateError
		s.err = cerr
		s.mu.Unlock()
		s.log.Warn("live: connect failed", "stage", stage, "err", err)
		s.observer.OnStatus(StatusError)
		return cerr
	}

	r := &runner{
		s:        s,
		conn:     conn,
		capture:  capture,
		output:   output,
		sched:    newScheduler(output),
		enc:      audio.NewEncoder(s.input),
		finished: make(chan uint64),
		quit:     make(chan struct{}),
	}
	s.state = StateOpen
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.metrics.ActiveLiveSessions.Add(ctx, 1)
	go r.run(s.stop, s.done)
	s.mu.Unlock()

	s.log.Info("live session open",
		"input", s.input.String(),
		"output", s.output.String(),
		"connect_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// open acquires capture, output and transport in that order. On failure the
// resources acquired so far are released and stage names the failed step.
func (s *Session) open(ctx context.Context) (audio.CaptureStream, audio.Output, providerlive.Conn, string, error) {
	capture, err := s.devices.OpenCapture(ctx, s.input)
	if err != nil {
		return nil, nil, nil, "capture", err
	}
	output, err := s.devices.OpenOutput(s.output)
	if err != nil {
		s.release(capture, nil, nil)
		return nil, nil, nil, "output", err
	}
	conn, err := s.provider.Connect(ctx, s.cfg)
	if err != nil {
		s.release(capture, output, nil)
		return nil, nil, nil, "transport", err
	}
	return capture, output, conn, "", nil
}

// release closes output, capture and conn, skipping nil ones. Close errors
// are logged, never returned.
func (s *Session) release(capture audio.CaptureStream, output audio.Output, conn providerlive.Conn) {
	if output != nil {
		if err := output.Close(); err != nil {
			s.log.Debug("live: close output", "err", err)
		}
	}
	if capture != nil {
		if err := capture.Close(); err != nil {
			s.log.Debug("live: close capture", "err", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.log.Debug("live: close connection", "err", err)
		}
	}
}

// Disconnect ends the session. Playback stops immediately and output,
// capture and connection are closed. The observer receives
// [StatusDisconnected] once. Calling Disconnect on an idle or already ended
// session is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateClosed, StateError:
		s.mu.Unlock()
		return nil
	case StateConnecting:
		s.state = StateClosed
		cancel, connectDone := s.cancel, s.connectDone
		s.mu.Unlock()
		cancel()
		<-connectDone
		s.log.Info("live: connect aborted")
		s.observer.OnStatus(StatusDisconnected)
		return nil
	case StateOpen:
		s.state = StateClosing
		close(s.stop)
	}
	done := s.done
	s.mu.Unlock()
	<-done
	return nil
}

// Done returns a channel closed once an opened session has fully shut down,
// whatever the cause. It is nil before the session opens.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func statusAttr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ─── event loop ───────────────────────────────────────────────────────────────

// runner is the state owned by the event loop of one open session.
type runner struct {
	s        *Session
	conn     providerlive.Conn
	capture  audio.CaptureStream
	output   audio.Output
	sched    *scheduler
	enc      *audio.Encoder
	finished chan uint64
	quit     chan struct{}
	watchers sync.WaitGroup
}

func (r *runner) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	r.s.observer.OnStatus(StatusConnected)

	frames := r.capture.Frames()
	events := r.conn.Events()
	for {
		select {
		case <-stop:
			r.shutdown(StateClosed, nil)
			return
		case f, ok := <-frames:
			if !ok {
				r.shutdown(StateError, ErrCaptureEnded)
				return
			}
			r.send(f)
		case ev, ok := <-events:
			if !ok {
				if err := r.conn.Err(); err != nil {
					r.shutdown(StateError, err)
				} else {
					r.shutdown(StateClosed, nil)
				}
				return
			}
			r.handle(ev)
		case id := <-r.finished:
			r.sched.finished(id)
		}
	}
}

// send encodes a captured frame and hands it to the transport. A busy writer
// drops the frame.
func (r *runner) send(f audio.CaptureFrame) {
	p, ok := r.enc.Encode(f)
	if !ok {
		return
	}
	ctx := context.Background()
	switch err := r.conn.SendAudio(p); {
	case err == nil:
		r.s.metrics.LiveFramesSent.Add(ctx, 1)
	case errors.Is(err, providerlive.ErrBusy):
		r.s.metrics.LiveFramesDropped.Add(ctx, 1)
		r.s.log.Debug("live: frame dropped, writer busy", "timestamp", f.Timestamp)
	case errors.Is(err, providerlive.ErrClosed):
		// The event stream ends next and drives shutdown.
	default:
		r.s.log.Warn("live: send audio", "err", err)
	}
}

func (r *runner) handle(ev providerlive.Event) {
	switch ev.Kind {
	case providerlive.EventAudio:
		if ev.Audio != nil {
			r.play(*ev.Audio)
		}
	case providerlive.EventText:
		r.s.observer.OnText(Transcript{Role: RoleModel, Text: ev.Text, Final: true})
	case providerlive.EventInputTranscript:
		r.s.observer.OnText(Transcript{Role: RoleUser, Text: ev.Text})
	case providerlive.EventOutputTranscript:
		r.s.observer.OnText(Transcript{Role: RoleModel, Text: ev.Text})
	case providerlive.EventInterrupted:
		n := r.sched.interrupt()
		r.s.metrics.LiveInterruptions.Add(context.Background(), 1)
		r.s.log.Debug("live: interrupted", "stopped", n)
	case providerlive.EventTurnComplete:
		r.s.log.Debug("live: turn complete", "pending", r.sched.pending())
	}
}

// play decodes a model audio chunk and queues it right after the previous
// one. Undecodable chunks are dropped.
func (r *runner) play(p audio.Packet) {
	if r.s.State() != StateOpen {
		return
	}
	ctx := context.Background()
	buf, err := audio.DecodePacket(p, r.s.output.SampleRate)
	if err != nil {
		r.s.metrics.LiveDecodeErrors.Add(ctx, 1)
		r.s.log.Warn("live: dropping undecodable audio", "mime", p.MIMEType, "err", err)
		return
	}
	id, v, err := r.sched.schedule(buf)
	if err != nil {
		r.s.log.Warn("live: schedule playback", "err", err)
		return
	}
	r.s.metrics.LiveChunksScheduled.Add(ctx, 1)
	r.watchers.Add(1)
	go r.watch(id, v)
}

// watch reports the voice's natural end to the loop.
func (r *runner) watch(id uint64, v audio.Voice) {
	defer r.watchers.Done()
	select {
	case <-v.Done():
		select {
		case r.finished <- id:
		case <-r.quit:
		}
	case <-r.quit:
	}
}

// shutdown stops playback, releases every resource and publishes the final
// state. It runs on the loop goroutine exactly once.
func (r *runner) shutdown(final State, cause error) {
	s := r.s
	s.mu.Lock()
	if s.state == StateOpen {
		s.state = StateClosing
	}
	s.mu.Unlock()

	stopped := r.sched.interrupt()
	close(r.quit)
	r.watchers.Wait()
	s.release(r.capture, r.output, r.conn)

	s.mu.Lock()
	s.state = final
	s.err = cause
	s.mu.Unlock()
	s.metrics.ActiveLiveSessions.Add(context.Background(), -1)

	status := StatusDisconnected
	if final == StateError {
		status = StatusError
		s.log.Warn("live session failed", "err", cause, "stopped_voices", stopped)
	} else {
		s.log.Info("live session closed", "stopped_voices", stopped)
	}
	s.observer.OnStatus(status)
}
