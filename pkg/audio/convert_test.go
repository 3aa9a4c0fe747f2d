package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/makanmate/makanmate/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts little-endian PCM to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestChannelConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func([]byte) []byte
		in   []int16
		want []int16
	}{
		{"mono to stereo", audio.MonoToStereo, []int16{100, 200, 300}, []int16{100, 100, 200, 200, 300, 300}},
		{"stereo to mono", audio.StereoToMono, []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"stereo to mono at full scale", audio.StereoToMono, []int16{32767, 32767, -32768, -32768}, []int16{32767, -32768}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(tc.fn(samplesToBytes(tc.in)))
			if !slices.Equal(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMonoToStereo_OddLengthInput(t *testing.T) {
	t.Parallel()

	out := audio.MonoToStereo([]byte{0x01, 0x00, 0x02})
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4 (trailing byte ignored)", len(out))
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		pcm       []byte
		channels  int
		src, dst  int
		wantBytes int
	}{
		{"same rate", samplesToBytes([]int16{1, 2, 3}), 1, 16000, 16000, 6},
		{"mono upsample", samplesToBytes(make([]int16, 160)), 1, 16000, 48000, 960},
		{"mono downsample", samplesToBytes(make([]int16, 480)), 1, 48000, 16000, 320},
		{"stereo downsample", samplesToBytes(make([]int16, 960)), 2, 48000, 16000, 640},
		{"zero source rate", samplesToBytes([]int16{1, 2}), 1, 0, 16000, 4},
		{"zero target rate", samplesToBytes([]int16{1, 2}), 1, 16000, 0, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out := audio.ResampleInterleaved16(tc.pcm, tc.channels, tc.src, tc.dst)
			if len(out) != tc.wantBytes {
				t.Errorf("len = %d, want %d", len(out), tc.wantBytes)
			}
		})
	}
}

func TestResampleInterleaved16_Interpolates(t *testing.T) {
	t.Parallel()

	out := bytesToSamples(audio.ResampleInterleaved16(samplesToBytes([]int16{0, 100}), 1, 1, 2))
	want := []int16{0, 50, 100, 100}
	if !slices.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestResampleInterleaved16_KeepsChannelsApart(t *testing.T) {
	t.Parallel()

	in := samplesToBytes([]int16{100, -100, 100, -100})
	out := bytesToSamples(audio.ResampleInterleaved16(in, 2, 1, 2))
	for i, s := range out {
		want := int16(100)
		if i%2 == 1 {
			want = -100
		}
		if s != want {
			t.Fatalf("sample %d = %d, want %d", i, s, want)
		}
	}
}

func TestFormatConverter(t *testing.T) {
	t.Parallel()

	target := audio.Format{SampleRate: 16000, Channels: 1}

	t.Run("matching format passes through", func(t *testing.T) {
		t.Parallel()
		conv := audio.FormatConverter{Target: target}
		frame := audio.AudioFrame{Data: samplesToBytes([]int16{1, 2}), SampleRate: 16000, Channels: 1}
		got := conv.Convert(frame)
		if !slices.Equal(got.Data, frame.Data) {
			t.Errorf("data changed: got %v", got.Data)
		}
	})

	t.Run("48k stereo to 16k mono", func(t *testing.T) {
		t.Parallel()
		conv := audio.FormatConverter{Target: target}
		frame := audio.AudioFrame{Data: samplesToBytes(make([]int16, 960)), SampleRate: 48000, Channels: 2}
		got := conv.Convert(frame)
		if got.SampleRate != 16000 || got.Channels != 1 {
			t.Fatalf("format = %dHz/%dch, want 16000Hz/1ch", got.SampleRate, got.Channels)
		}
		if len(got.Data) != 320 {
			t.Errorf("len = %d, want 320", len(got.Data))
		}
	})

	t.Run("mono to stereo target", func(t *testing.T) {
		t.Parallel()
		conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 2}}
		got := conv.Convert(audio.AudioFrame{Data: samplesToBytes([]int16{7}), SampleRate: 16000, Channels: 1})
		if s := bytesToSamples(got.Data); !slices.Equal(s, []int16{7, 7}) {
			t.Errorf("got %v, want [7 7]", s)
		}
	})

	t.Run("misaligned data dropped", func(t *testing.T) {
		t.Parallel()
		conv := audio.FormatConverter{Target: target}
		got := conv.Convert(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
		if len(got.Data) != 0 {
			t.Errorf("expected empty frame, got %d bytes", len(got.Data))
		}
	})
}

func TestFormatString(t *testing.T) {
	t.Parallel()

	tests := map[audio.Format]string{
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 44100, Channels: 6}: "44100Hz 6ch",
	}
	for f, want := range tests {
		if got := f.String(); got != want {
			t.Errorf("%v: got %q, want %q", f, got, want)
		}
	}
}
