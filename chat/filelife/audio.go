package filelife

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/tcolgate/mp3"
)

const transcriptionInstruction = "Generate a transcript of the audio. "

// TimeRange is a focus window within an audio file, as written by the user
// ("HH:MM"). Start/end ordering is not validated; first pattern match wins.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AudioOptions shape the prompt sent alongside an audio attachment.
type AudioOptions struct {
	Transcribe bool
	TimeRange  *TimeRange
}

var timeRangePattern = regexp.MustCompile(`(?i)(\d{2}:\d{2})\s*(?:to|-)\s*(\d{2}:\d{2})`)

// ExtractTimeRange pulls an "HH:MM to HH:MM" window out of free text.
// Returns nil when the text contains no such window.
func ExtractTimeRange(prompt string) *TimeRange {
	m := timeRangePattern.FindStringSubmatch(prompt)
	if m == nil {
		return nil
	}
	return &TimeRange{Start: m[1], End: m[2]}
}

// WantsTranscription reports whether the prompt asks for a transcript.
func WantsTranscription(prompt string) bool {
	return strings.Contains(prompt, "转录") ||
		strings.Contains(strings.ToLower(prompt), "transcribe")
}

// BuildAudioPrompt applies the transcription instruction and time-range
// focus suffix to the user's prompt.
func BuildAudioPrompt(prompt string, opts AudioOptions) string {
	final := prompt
	if opts.Transcribe {
		final = transcriptionInstruction + prompt
	}
	if opts.TimeRange != nil {
		final += fmt.Sprintf(" Focus on the section from %s to %s.", opts.TimeRange.Start, opts.TimeRange.End)
	}
	return final
}

// ValidateAudio rejects attachments outside the audio allow-list and audio
// longer than MaxAudioDuration. The duration probe runs under a bounded
// deadline: a codec failure or a stalled decode surfaces as a
// ValidationError instead of hanging the send.
func (m *Manager) ValidateAudio(ctx context.Context, att *Attachment) error {
	mime := att.EffectiveMIMEType()
	if _, ok := supportedAudioTypes[mime]; !ok {
		return &ValidationError{Reason: fmt.Sprintf("unsupported audio format %q", mime)}
	}

	duration, known, err := m.probeDuration(ctx, att)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("failed to read audio metadata: %v", err)}
	}
	if !known {
		// No decoder for this container; the provider enforces its own
		// duration limit.
		slog.Debug("audio duration not determinable locally", "mime", mime)
		return nil
	}
	if duration > MaxAudioDuration {
		return &ValidationError{Reason: "audio file is too long: maximum duration is 9.5 hours"}
	}
	return nil
}

// probeDuration decodes the attachment's metadata in a worker goroutine and
// gives up at the configured deadline. known is false when no decoder exists
// for the media type.
func (m *Manager) probeDuration(ctx context.Context, att *Attachment) (duration time.Duration, known bool, err error) {
	mime := att.EffectiveMIMEType()

	var decode func([]byte) (time.Duration, error)
	switch mime {
	case "audio/wav":
		decode = wavDuration
	case "audio/mp3", "audio/mpeg":
		decode = mp3Duration
	default:
		return 0, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	type result struct {
		d   time.Duration
		err error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := decode(att.Data)
		ch <- result{d, err}
	}()

	select {
	case r := <-ch:
		return r.d, true, r.err
	case <-ctx.Done():
		return 0, true, errors.New("timed out decoding audio metadata")
	}
}

func wavDuration(data []byte) (time.Duration, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	dur, err := d.Duration()
	if err != nil {
		return 0, fmt.Errorf("decode wav: %w", err)
	}
	return dur, nil
}

func mp3Duration(data []byte) (time.Duration, error) {
	d := mp3.NewDecoder(bytes.NewReader(data))
	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
	)
	for {
		if err := d.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return 0, fmt.Errorf("decode mp3: %w", err)
		}
		total += frame.Duration()
	}
}
