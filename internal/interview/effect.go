package interview

import (
	"fmt"
	"time"
)

type EffectKind int

const (
	// EffectStartTimer restarts the countdown for Cycle.
	EffectStartTimer EffectKind = iota + 1
	EffectStopTimer
	// EffectSpeak announces Text if speech output is available.
	EffectSpeak
	EffectStopListening
	EffectCue
	// EffectExpire asks for Expire(Cycle, At) once the time-up cue had a
	// moment to play.
	EffectExpire
	// EffectComplete reports that the last question was resolved.
	EffectComplete
)

func (k EffectKind) String() string {
	switch k {
	case EffectStartTimer:
		return "start_timer"
	case EffectStopTimer:
		return "stop_timer"
	case EffectSpeak:
		return "speak"
	case EffectStopListening:
		return "stop_listening"
	case EffectCue:
		return "cue"
	case EffectExpire:
		return "expire"
	case EffectComplete:
		return "complete"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

type Cue string

const (
	CueWarning Cue = "warning"
	CueTimeUp  Cue = "time_up"
)

// Effect is a side effect requested by a transition.
type Effect struct {
	Kind  EffectKind
	Cycle uint64
	Text  string
	Cue   Cue
	At    time.Time
}

func hasEffect(effects []Effect, k EffectKind) bool {
	for _, e := range effects {
		if e.Kind == k {
			return true
		}
	}
	return false
}
