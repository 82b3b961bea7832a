package rebuild

// State is the rebuild state of a node.
type State int

const (
	// Idle means no pipeline is renderable: the machine was closed or the
	// fallback itself failed to build.
	Idle State = iota

	// Building means a structural change is being compiled. The previously
	// published pipeline, if any, keeps rendering.
	Building

	// Active means the user program compiled and is published.
	Active

	// Degraded means the user program was rejected and the fallback is
	// published alongside a diagnostic.
	Degraded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Active:
		return "active"
	case Degraded:
		return "degraded"
	}
	return "unknown"
}
