package orchestrator

// State is a step of the per-request pipeline.
type State int

const (
	StateReceived State = iota
	StateConverting
	StateClassifying
	StateQuadraticPath
	StateLimitPath
	StateBackendPath
	StateNormalizing
	StateConvertingBack
	StateRendering
	StateDone
)

var stateNames = [...]string{
	StateReceived:       "received",
	StateConverting:     "converting",
	StateClassifying:    "classifying",
	StateQuadraticPath:  "quadratic_path",
	StateLimitPath:      "limit_path",
	StateBackendPath:    "backend_path",
	StateNormalizing:    "normalizing",
	StateConvertingBack: "converting_back",
	StateRendering:      "rendering",
	StateDone:           "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
