package publish

// State is a Publisher position.
type State int

const (
	StateNone State = iota
	StateStaging
	StateCommitted
	StatePushed
	StateSyncing
	StateCreating
	StateVerifying
	StateLinked
	StateLinkWarned
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateStaging:
		return "staging"
	case StateCommitted:
		return "committed"
	case StatePushed:
		return "pushed"
	case StateSyncing:
		return "syncing"
	case StateCreating:
		return "creating"
	case StateVerifying:
		return "verifying"
	case StateLinked:
		return "linked"
	case StateLinkWarned:
		return "link_warned"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a successful run.
func (s State) Terminal() bool {
	return s == StateLinked || s == StateLinkWarned
}
