package acquisition

import "fmt"

// State is the acquisition controller's current phase.
type State int

const (
	StateIdleSampling State = iota
	StateAwaitingStimulusSelection
	StateStimulusSampling
	StateInterTrialGap
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdleSampling:
		return "idle_sampling"
	case StateAwaitingStimulusSelection:
		return "awaiting_stimulus_selection"
	case StateStimulusSampling:
		return "stimulus_sampling"
	case StateInterTrialGap:
		return "inter_trial_gap"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EndReason records why a session terminated.
type EndReason int

const (
	// ReasonCompleted means every repetition was presented.
	ReasonCompleted EndReason = iota
	// ReasonAborted means the context was cancelled.
	ReasonAborted
	// ReasonFailed means a fatal error stopped the session.
	ReasonFailed
)

func (r EndReason) String() string {
	switch r {
	case ReasonCompleted:
		return "completed"
	case ReasonAborted:
		return "aborted"
	case ReasonFailed:
		return "failed"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}
