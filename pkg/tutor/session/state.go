package session

// State is the lifecycle position of the active tutoring session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateSpeaking   State = "speaking"
	StateEnding     State = "ending"
)

// Active reports whether a session exists in this state.
func (s State) Active() bool {
	return s != StateIdle
}

// Streaming reports whether the voice stream is open and timed.
func (s State) Streaming() bool {
	return s == StateConnected || s == StateSpeaking
}

type trigger string

const (
	triggerStart           trigger = "start"
	triggerConnected       trigger = "connect_succeeded"
	triggerConnectFailed   trigger = "connect_failed"
	triggerAbort           trigger = "end_while_connecting"
	triggerAssistantItem   trigger = "assistant_item_created"
	triggerResponseDone    trigger = "response_done"
	triggerUnexpectedClose trigger = "unexpected_close"
	triggerEnd             trigger = "end"
	triggerReportSettled   trigger = "report_settled"
)

var transitions = map[State]map[trigger]State{
	StateIdle: {
		triggerStart: StateConnecting,
	},
	StateConnecting: {
		triggerConnected:     StateConnected,
		triggerConnectFailed: StateIdle,
		triggerAbort:         StateIdle,
	},
	StateConnected: {
		triggerAssistantItem:   StateSpeaking,
		triggerUnexpectedClose: StateIdle,
		triggerEnd:             StateEnding,
	},
	StateSpeaking: {
		triggerResponseDone:    StateConnected,
		triggerUnexpectedClose: StateIdle,
		triggerEnd:             StateEnding,
	},
	StateEnding: {
		triggerReportSettled: StateIdle,
	},
}

func nextState(from State, tr trigger) (State, bool) {
	to, ok := transitions[from][tr]
	return to, ok
}
