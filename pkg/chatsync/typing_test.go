package chatsync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypingMachine_Table(t *testing.T) {
	cases := []struct {
		from    TypingState
		trigger typingTrigger
		to      TypingState
		applied bool
	}{
		{TypingIdle, submitAccepted, TypingPending, true},
		{TypingPending, submitAccepted, TypingPending, true},
		{TypingPending, dispatchFailed, TypingIdle, true},
		{TypingPending, appendFailed, TypingIdle, true},
		{TypingPending, botReplyObserved, TypingIdle, true},
		{TypingPending, replyTimedOut, TypingIdle, true},
		{TypingPending, sessionReset, TypingIdle, true},
		{TypingIdle, sessionReset, TypingIdle, true},
		{TypingIdle, dispatchFailed, TypingIdle, false},
		{TypingIdle, appendFailed, TypingIdle, false},
		{TypingIdle, botReplyObserved, TypingIdle, false},
		{TypingIdle, replyTimedOut, TypingIdle, false},
	}
	for _, tc := range cases {
		t.Run(tc.from.String()+"/"+tc.trigger.String(), func(t *testing.T) {
			m := typingMachine{state: tc.from}
			require.Equal(t, tc.applied, m.fire(tc.trigger))
			require.Equal(t, tc.to, m.state)
		})
	}
}
