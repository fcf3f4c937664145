// Package prompt asks the operator for a yes/no confirmation.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Service defines the interface for operator confirmation.
type Service interface {
	Confirm(question string) (bool, error)
}

// Impl reads answers line by line from in and writes questions to out.
type Impl struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates a prompt bound to the given streams.
func New(in io.Reader, out io.Writer) *Impl {
	return &Impl{in: bufio.NewReader(in), out: out}
}

// Confirm writes question and reads one answer. The default is "no": an
// empty line or end of input declines. Only "y" (any case) accepts.
func (p *Impl) Confirm(question string) (bool, error) {
	if _, err := fmt.Fprint(p.out, question); err != nil {
		return false, fmt.Errorf("writing prompt: %w", err)
	}

	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading answer: %w", err)
	}

	return strings.EqualFold(strings.TrimSpace(line), "y"), nil
}
