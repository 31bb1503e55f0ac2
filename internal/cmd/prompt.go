package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// terminalPrompter asks yes/no questions on the controlling terminal.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *terminalPrompter) Confirm(question string, def bool) (bool, error) {
	hint := "[Y/n]"
	if !def {
		hint = "[y/N]"
	}
	fmt.Fprintf(p.out, "%s %s ", question, hint)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// autoPrompter accepts every default without asking. Used with --yes.
type autoPrompter struct{}

func (autoPrompter) Confirm(_ string, def bool) (bool, error) {
	return def, nil
}
