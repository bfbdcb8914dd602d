package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxAttempts is how many invalid answers Select tolerates before giving up
const maxAttempts = 3

var (
	// ErrNoChoices is returned when Select is called with an empty list
	ErrNoChoices = errors.New("nothing to choose from")
	// ErrTooManyAttempts is returned after maxAttempts invalid answers
	ErrTooManyAttempts = errors.New("too many invalid answers")
)

// Prompter asks questions on out and reads answers from in
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Select prints a numbered list and returns the index of the chosen entry
func (p *Prompter) Select(message string, choices []string) (int, error) {
	if len(choices) == 0 {
		return -1, ErrNoChoices
	}

	fmt.Fprintln(p.out, message)
	for i, choice := range choices {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, choice)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(p.out, "Enter choice [1-%d]: ", len(choices))

		answer, err := p.readLine()
		if err != nil {
			return -1, err
		}

		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(choices) {
			return n - 1, nil
		}
		fmt.Fprintf(p.out, "Invalid choice %q\n", answer)
	}

	return -1, ErrTooManyAttempts
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
