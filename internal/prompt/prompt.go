package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/bbuddy/scan-relay-go/internal/scanner"
)

const cancelInput = "c"

// Interactive reports whether f is a terminal a person can answer prompts on.
func Interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Prompter asks for price and best-before date on a line-oriented terminal.
type Prompter struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:    in,
		out:   out,
		lines: make(chan string),
	}
}

// Prompt keeps asking until the entry is valid or the user cancels. Input
// that ends or a cancelled context also cancels the confirmation.
func (p *Prompter) Prompt(ctx context.Context, c *scanner.Confirmation) {
	p.once.Do(func() { go p.readLines() })

	fmt.Fprintf(p.out, "\nScanned: %s\n", c.Barcode)

	for {
		price, ok := p.ask(ctx, "Price (blank to skip, c to cancel): ")
		if !ok {
			c.Cancel()
			return
		}
		date, ok := p.ask(ctx, "Best before YYYY-MM-DD (blank to skip, c to cancel): ")
		if !ok {
			c.Cancel()
			return
		}

		err := c.Submit(ctx, price, date)
		if errors.Is(err, scanner.ErrValidation) {
			fmt.Fprintln(p.out, err.Error())
			continue
		}
		if err != nil {
			fmt.Fprintf(p.out, "Error posting scan: %v\n", err)
			return
		}
		fmt.Fprintf(p.out, "Saved %s\n", c.Barcode)
		return
	}
}

// ask returns the trimmed answer, or false when the user cancels.
func (p *Prompter) ask(ctx context.Context, question string) (string, bool) {
	fmt.Fprint(p.out, question)

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", false
	case line, ok := <-p.lines:
		if !ok {
			fmt.Fprintln(p.out)
			return "", false
		}
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, cancelInput) {
			fmt.Fprintln(p.out, "Cancelled")
			return "", false
		}
		return line, true
	}
}

func (p *Prompter) readLines() {
	defer close(p.lines)

	sc := bufio.NewScanner(p.in)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("prompt input closed")
	}
}
