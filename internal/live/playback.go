package live

import (
	"time"

	"github.com/makanmate/makanmate/pkg/audio"
)

// scheduler queues model audio back to back on an output clock. It is owned
// by the session loop and is not safe for concurrent use.
//
// The cursor is kept in frames at the rate of the last scheduled chunk, so
// consecutive chunks abut exactly whatever their length. It only moves
// forward, except that an interruption resets it to zero so the next chunk
// starts at the current clock time.
type scheduler struct {
	out    audio.Output
	cursor int64
	rate   int
	active map[uint64]audio.Voice
	seq    uint64
}

func newScheduler(out audio.Output) *scheduler {
	return &scheduler{out: out, active: make(map[uint64]audio.Voice)}
}

// nextStart is the cursor as a clock time.
func (s *scheduler) nextStart() time.Duration {
	if s.rate <= 0 {
		return 0
	}
	return audio.FramesToDuration(s.cursor, s.rate)
}

// schedule starts buf at max(cursor, now) and advances the cursor by the
// buffer's length. The returned id identifies the voice in finished.
func (s *scheduler) schedule(buf audio.Buffer) (id uint64, v audio.Voice, err error) {
	rate := buf.SampleRate
	if rate <= 0 {
		return 0, nil, &audio.DecodeError{Reason: "buffer has no sample rate"}
	}

	start := s.cursor
	if s.rate != rate {
		start = audio.DurationToFrames(s.nextStart(), rate)
	}
	start = max(start, audio.DurationToFramesCeil(s.out.Now(), rate))

	v, err = s.out.Schedule(buf, audio.FramesToDuration(start, rate))
	if err != nil {
		return 0, nil, err
	}
	s.cursor, s.rate = start+int64(buf.Frames()), rate
	s.seq++
	s.active[s.seq] = v
	return s.seq, v, nil
}

// finished drops a voice that played to its end. Unknown ids are ignored;
// they belong to voices already removed by an interruption.
func (s *scheduler) finished(id uint64) {
	delete(s.active, id)
}

// interrupt stops every active voice, forgets them and resets the cursor.
func (s *scheduler) interrupt() int {
	n := len(s.active)
	for id, v := range s.active {
		v.Stop()
		delete(s.active, id)
	}
	s.cursor = 0
	return n
}

// pending returns the number of voices scheduled and not yet finished.
func (s *scheduler) pending() int { return len(s.active) }
