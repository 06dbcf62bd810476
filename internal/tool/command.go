package tool

import (
	"strings"

	"github.com/google/shlex"
	"github.com/juju/errors"
)

// Command is the fixed prefix of a tool invocation, for example
// ["python", "-m", "esptool"] or ["esptool.py"].
type Command []string

// ParseCommand splits a command template with shell quoting rules.
func ParseCommand(template string) (Command, error) {
	parts, err := shlex.Split(template)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing command %q", template)
	}
	if len(parts) == 0 {
		return nil, errors.NotValidf("empty command %q", template)
	}
	return Command(parts), nil
}

// MustParseCommand is ParseCommand for compile-time constants.
func MustParseCommand(template string) Command {
	c, err := ParseCommand(template)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Command) argv(args []string) (string, []string, error) {
	if len(c) == 0 {
		return "", nil, errors.NotValidf("empty command")
	}
	argv := make([]string, 0, len(c)-1+len(args))
	argv = append(argv, c[1:]...)
	argv = append(argv, args...)
	return c[0], argv, nil
}

func (c Command) String() string {
	return strings.Join(c, " ")
}
