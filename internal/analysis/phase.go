package analysis

import "fmt"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUploading
	PhaseQueued
	PhaseProcessing
	PhaseComplete
	PhaseError
)

var phaseNames = map[Phase]string{
	PhaseIdle:       "idle",
	PhaseUploading:  "uploading",
	PhaseQueued:     "queued",
	PhaseProcessing: "processing",
	PhaseComplete:   "complete",
	PhaseError:      "error",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// rank orders phases; both terminal phases share the highest rank.
func (p Phase) rank() int {
	if p.Terminal() {
		return int(PhaseComplete)
	}
	return int(p)
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}
