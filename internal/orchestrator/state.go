package orchestrator

import (
	"go.uber.org/zap"
)

// State is a step of a comparison run.
type State int

const (
	StateStart State = iota
	StateResolveConfig
	StateAnalyze
	StateDiff
	StateScore
	StateEnrich
	StateAssemble
	StatePersist
	StateDone
	StateError
)

var stateNames = [...]string{
	StateStart:         "start",
	StateResolveConfig: "resolve_config",
	StateAnalyze:       "analyze",
	StateDiff:          "diff",
	StateScore:         "score",
	StateEnrich:        "enrich",
	StateAssemble:      "assemble",
	StatePersist:       "persist",
	StateDone:          "done",
	StateError:         "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateError }

// machine tracks the current state of one run and logs transitions.
type machine struct {
	current State
	log     *zap.Logger
}

func (m *machine) enter(s State) {
	m.log.Debug("Comparison state", zap.Stringer("from", m.current), zap.Stringer("to", s))
	m.current = s
}

// fail moves to StateError from whatever state raised err.
func (m *machine) fail(err error) {
	m.log.Error("Comparison failed", zap.Stringer("state", m.current), zap.Error(err))
	m.current = StateError
}
