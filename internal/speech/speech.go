// Package speech adapts text-to-speech and speech-to-text capabilities that
// may be missing. Callers treat ErrUnavailable as "fall back to text".
package speech

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("speech: capability unavailable")

// Unavailable is the capability of a platform with no speech support.
type Unavailable struct{}

func (Unavailable) Speak(context.Context, string) error {
	return ErrUnavailable
}

func (Unavailable) Transcribe(context.Context) (<-chan string, error) {
	return nil, ErrUnavailable
}

func (Unavailable) PlayCue(context.Context, string) error {
	return ErrUnavailable
}
