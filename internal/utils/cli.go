package utils

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kballard/go-shellquote"
)

// SplitStringIntoCommandAndArguments tokenizes a REPL line with shell quoting
// rules. The first word is the command, the second the key, and everything
// after that is joined with single spaces into the value, so both
//
//	set city "new york"
//	set city new york
//
// store "new york".
func SplitStringIntoCommandAndArguments(line string) (cmd, key, value string, err error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return "", "", "", errors.Wrap(err, "parsing command line")
	}
	if len(words) == 0 {
		return "", "", "", errors.New("empty command")
	}

	cmd = strings.ToLower(words[0])
	if len(words) > 1 {
		key = words[1]
	}
	if len(words) > 2 {
		value = strings.Join(words[2:], " ")
	}
	return cmd, key, value, nil
}
