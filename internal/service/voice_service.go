package service

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/tcolgate/mp3"

	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/pkg/errno"
)

// EstimateBitrate is the bitrate assumed when the MP3 frames cannot be read
const EstimateBitrate = 128000

// Voiceover is synthesized narration audio
type Voiceover struct {
	Audio           []byte
	DurationSeconds float64
	// Approximate is set when the duration was estimated from byte size
	Approximate bool
}

// VoiceService turns a script into narration audio
type VoiceService struct {
	speech client.SpeechSynthesizer
}

func NewVoiceService(speech client.SpeechSynthesizer) *VoiceService {
	return &VoiceService{speech: speech}
}

func (s *VoiceService) Synthesize(ctx context.Context, script string) (*Voiceover, error) {
	audio, err := s.speech.Synthesize(ctx, script)
	if err != nil {
		return nil, errno.ErrVoiceSynthesis.Wrap(err)
	}

	v := &Voiceover{Audio: audio}
	if d, ok := MP3Duration(audio); ok {
		v.DurationSeconds = d
	} else {
		v.DurationSeconds = EstimateDuration(len(audio))
		v.Approximate = true
	}
	return v, nil
}

// MP3Duration sums frame durations. ok is false when no frame could be decoded.
func MP3Duration(audio []byte) (float64, bool) {
	dec := mp3.NewDecoder(bytes.NewReader(audio))

	var (
		f       mp3.Frame
		skipped int
		total   float64
		frames  int
	)
	for {
		if err := dec.Decode(&f, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if frames == 0 {
				return 0, false
			}
			break
		}
		total += f.Duration().Seconds()
		frames++
	}

	if frames == 0 || total <= 0 {
		return 0, false
	}
	return total, true
}

// EstimateDuration assumes a constant 128 kbps stream
func EstimateDuration(size int) float64 {
	return float64(size*8) / EstimateBitrate
}
