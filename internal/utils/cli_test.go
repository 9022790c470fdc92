package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStringIntoCommandAndArguments(t *testing.T) {
	tests := []struct {
		line            string
		cmd, key, value string
	}{
		{"ping", "ping", "", ""},
		{"GET foo", "get", "foo", ""},
		{"set foo bar", "set", "foo", "bar"},
		{`set city "new york"`, "set", "city", "new york"},
		{"set city new   york", "set", "city", "new york"},
		{`set 'my key' 'it''s'`, "set", "my key", "its"},
		{`set k "say \"hi\""`, "set", "k", `say "hi"`},
		{"  rm   foo  ", "rm", "foo", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, key, value, err := SplitStringIntoCommandAndArguments(tt.line)
			require.NoError(t, err)
			require.Equal(t, tt.cmd, cmd)
			require.Equal(t, tt.key, key)
			require.Equal(t, tt.value, value)
		})
	}
}

func TestSplitStringIntoCommandAndArgumentsErrors(t *testing.T) {
	for _, line := range []string{"", "   ", `set k "unterminated`} {
		_, _, _, err := SplitStringIntoCommandAndArguments(line)
		require.Error(t, err, "line %q", line)
	}
}

func TestWithInterruptOrKillFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := WithInterruptOrKill(parent)
	defer stop()

	require.NoError(t, ctx.Err())
	cancel()
	<-ctx.Done()
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
