package chatsync

// TypingState tells the UI whether an assistant reply is outstanding.
type TypingState int

const (
	TypingIdle TypingState = iota
	TypingPending
)

func (s TypingState) String() string {
	switch s {
	case TypingIdle:
		return "idle"
	case TypingPending:
		return "pending"
	default:
		return "unknown"
	}
}

type typingTrigger int

const (
	submitAccepted typingTrigger = iota
	dispatchFailed
	appendFailed
	botReplyObserved
	replyTimedOut
	sessionReset
)

func (t typingTrigger) String() string {
	switch t {
	case submitAccepted:
		return "submit_accepted"
	case dispatchFailed:
		return "dispatch_failed"
	case appendFailed:
		return "append_failed"
	case botReplyObserved:
		return "bot_reply_observed"
	case replyTimedOut:
		return "reply_timed_out"
	case sessionReset:
		return "session_reset"
	default:
		return "unknown"
	}
}

type typingEdge struct {
	from    TypingState
	trigger typingTrigger
}

// typingTransitions is the complete table; pairs not listed are ignored.
var typingTransitions = map[typingEdge]TypingState{
	{TypingIdle, submitAccepted}:      TypingPending,
	{TypingPending, submitAccepted}:   TypingPending,
	{TypingPending, dispatchFailed}:   TypingIdle,
	{TypingPending, appendFailed}:     TypingIdle,
	{TypingPending, botReplyObserved}: TypingIdle,
	{TypingPending, replyTimedOut}:    TypingIdle,
	{TypingPending, sessionReset}:     TypingIdle,
	{TypingIdle, sessionReset}:        TypingIdle,
}

type typingMachine struct {
	state TypingState
}

// fire applies trigger and reports whether the table had an entry for it.
func (m *typingMachine) fire(trigger typingTrigger) bool {
	next, ok := typingTransitions[typingEdge{m.state, trigger}]
	if !ok {
		return false
	}
	m.state = next
	return true
}
