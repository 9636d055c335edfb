package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// prompter asks questions on out and reads answers from the shared input reader
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (a *app) prompter() *prompter {
	return &prompter{in: a.reader, out: a.out}
}

func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question; anything but y or yes declines
func (p *prompter) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
	answer, err := p.readLine()
	if err == io.EOF {
		fmt.Fprintln(p.out)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// ConfirmTyped requires the exact expected text
func (p *prompter) ConfirmTyped(prompt, expected string) (bool, error) {
	fmt.Fprintf(p.out, "%s (%s): ", prompt, expected)
	answer, err := p.readLine()
	if err == io.EOF {
		fmt.Fprintln(p.out)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return answer == expected, nil
}
