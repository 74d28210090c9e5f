package syncer

// State is the phase the engine is in.
type State string

const (
	StateBackfilling State = "backfilling"
	StateLiveTailing State = "live_tailing"
	StateShutdown    State = "shutdown"
)

func allStates() []string {
	return []string{string(StateBackfilling), string(StateLiveTailing), string(StateShutdown)}
}
