package live

import (
	"errors"
	"testing"
	"time"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/audio/mixer"
	audiomock "github.com/makanmate/makanmate/pkg/audio/mock"
)

// chunk returns a silent mono buffer lasting d at 1 kHz.
func chunk(d time.Duration) audio.Buffer {
	return audio.Buffer{
		Samples:    make([]float32, int(d/time.Millisecond)),
		SampleRate: 1000,
		Channels:   1,
	}
}

func TestScheduler_BackToBack(t *testing.T) {
	t.Parallel()

	out := audiomock.NewOutput()
	s := newScheduler(out)

	for i, want := range []time.Duration{0, 100 * time.Millisecond, 300 * time.Millisecond} {
		d := 100 * time.Millisecond
		if i == 1 {
			d = 200 * time.Millisecond
		}
		if _, _, err := s.schedule(chunk(d)); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
		if got := out.Calls()[i].At; got != want {
			t.Errorf("chunk %d start = %v, want %v", i, got, want)
		}
	}
	if s.pending() != 3 {
		t.Errorf("pending = %d, want 3", s.pending())
	}
	if s.nextStart() != 400*time.Millisecond {
		t.Errorf("nextStart = %v, want 400ms", s.nextStart())
	}
}

// Three half-second model chunks play as one contiguous 1.5 s span.
func TestScheduler_HalfSecondChunksContiguous(t *testing.T) {
	t.Parallel()

	out := audiomock.NewOutput()
	s := newScheduler(out)
	for range 3 {
		if _, _, err := s.schedule(chunk(500 * time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}
	for i, want := range []time.Duration{0, 500 * time.Millisecond, time.Second} {
		if got := out.Calls()[i].At; got != want {
			t.Errorf("chunk %d start = %v, want %v", i, got, want)
		}
	}
	if s.nextStart() != 1500*time.Millisecond {
		t.Errorf("nextStart = %v, want 1.5s", s.nextStart())
	}
}

// Chunk lengths that are not a whole number of nanoseconds must still abut
// exactly on the render clock.
func TestScheduler_OddLengthsAbutOnTimeline(t *testing.T) {
	t.Parallel()

	const (
		rate   = 24000
		frames = 1001
		level  = float32(0.25)
	)
	tl := mixer.New(rate)
	s := newScheduler(tl)
	for i := range 3 {
		buf := audio.Buffer{Samples: make([]float32, frames), SampleRate: rate, Channels: 1}
		for j := range buf.Samples {
			buf.Samples[j] = level
		}
		if _, _, err := s.schedule(buf); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
	}

	out := make([]float32, 3*frames+10)
	tl.Render(out)
	for i := range 3 * frames {
		if out[i] != level {
			t.Fatalf("out[%d] = %v, want %v (gap or overlap at a chunk seam)", i, out[i], level)
		}
	}
	for i := 3 * frames; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("out[%d] = %v, want silence after the last chunk", i, out[i])
		}
	}
}

func TestScheduler_ClockAheadOfCursor(t *testing.T) {
	t.Parallel()

	out := audiomock.NewOutput()
	s := newScheduler(out)

	if _, _, err := s.schedule(chunk(100 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	// Playback drained and the clock moved on: the next chunk starts now.
	out.SetNow(250 * time.Millisecond)
	if _, _, err := s.schedule(chunk(100 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if got := out.Calls()[1].At; got != 250*time.Millisecond {
		t.Errorf("start = %v, want 250ms", got)
	}
	if s.nextStart() != 350*time.Millisecond {
		t.Errorf("nextStart = %v, want 350ms", s.nextStart())
	}
}

func TestScheduler_Finished(t *testing.T) {
	t.Parallel()

	out := audiomock.NewOutput()
	s := newScheduler(out)

	id1, _, _ := s.schedule(chunk(10 * time.Millisecond))
	id2, _, _ := s.schedule(chunk(10 * time.Millisecond))
	if id1 == id2 {
		t.Fatalf("ids not unique: %d", id1)
	}

	s.finished(id1)
	s.finished(id1)
	s.finished(9999)
	if s.pending() != 1 {
		t.Errorf("pending = %d, want 1", s.pending())
	}

	// A finished voice is not stopped by a later interruption.
	if n := s.interrupt(); n != 1 {
		t.Errorf("interrupt stopped %d voices, want 1", n)
	}
	calls := out.Calls()
	if calls[0].Voice.Stops() != 0 {
		t.Error("finished voice was stopped")
	}
	if calls[1].Voice.Stops() != 1 {
		t.Error("active voice was not stopped")
	}
}

func TestScheduler_InterruptResetsCursor(t *testing.T) {
	t.Parallel()

	out := audiomock.NewOutput()
	s := newScheduler(out)
	for range 3 {
		if _, _, err := s.schedule(chunk(500 * time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}

	out.SetNow(200 * time.Millisecond)
	if n := s.interrupt(); n != 3 {
		t.Errorf("interrupt stopped %d voices, want 3", n)
	}
	if s.pending() != 0 || s.nextStart() != 0 {
		t.Errorf("after interrupt pending=%d nextStart=%v, want 0 and 0", s.pending(), s.nextStart())
	}
	for i, c := range out.Calls() {
		if c.Voice.Stops() != 1 {
			t.Errorf("voice %d stops = %d, want 1", i, c.Voice.Stops())
		}
	}

	// Second interrupt with nothing active is harmless.
	if n := s.interrupt(); n != 0 {
		t.Errorf("empty interrupt stopped %d voices", n)
	}

	if _, _, err := s.schedule(chunk(100 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if got := out.Calls()[3].At; got != 200*time.Millisecond {
		t.Errorf("post-interrupt start = %v, want current clock 200ms", got)
	}
}

func TestScheduler_ScheduleErrorKeepsCursor(t *testing.T) {
	t.Parallel()

	out := audiomock.NewOutput()
	s := newScheduler(out)
	if _, _, err := s.schedule(chunk(100 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	out.ScheduleErr = audio.ErrDeviceClosed
	_, _, err := s.schedule(chunk(100 * time.Millisecond))
	if !errors.Is(err, audio.ErrDeviceClosed) {
		t.Fatalf("err = %v, want ErrDeviceClosed", err)
	}
	if s.nextStart() != 100*time.Millisecond || s.pending() != 1 {
		t.Errorf("failed schedule changed state: nextStart=%v pending=%d", s.nextStart(), s.pending())
	}
}
