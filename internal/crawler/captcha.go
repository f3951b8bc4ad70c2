package crawler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Operator is asked to clear a captcha by hand. Resolve returns once the
// operator reports the challenge solved.
type Operator interface {
	Resolve(ctx context.Context, platform, url string) error
}

// ConsoleOperator prompts on Out and waits for Enter on In. Prompts from
// concurrent workers are shown one at a time.
type ConsoleOperator struct {
	In  io.Reader
	Out io.Writer

	mu        sync.Mutex
	startOnce sync.Once
	lines     chan struct{}
}

// NewConsoleOperator creates an operator reading from in and writing to out
func NewConsoleOperator(in io.Reader, out io.Writer) *ConsoleOperator {
	return &ConsoleOperator{In: in, Out: out}
}

func (o *ConsoleOperator) read() {
	scanner := bufio.NewScanner(o.In)
	for scanner.Scan() {
		o.lines <- struct{}{}
	}
	close(o.lines)
}

// Resolve implements Operator
func (o *ConsoleOperator) Resolve(ctx context.Context, platform, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.startOnce.Do(func() {
		o.lines = make(chan struct{})
		go o.read()
	})
	fmt.Fprintf(o.Out, "\n[%s] captcha detected on %s\nSolve it in the browser window, then press Enter to continue...\n", platform, url)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-o.lines:
		if !ok {
			return io.EOF
		}
		return nil
	}
}
