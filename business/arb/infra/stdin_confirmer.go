package infra

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/predikt/arb-agent/internal/logger"
)

// StdinConfirmer asks a human operator to type y/N on the process's
// standard input before an Executor proceeds. It implements
// business/arb/app.Confirmer.
type StdinConfirmer struct {
	in  *bufio.Reader
	out *os.File
	log logger.LoggerInterface
}

// NewStdinConfirmer builds a StdinConfirmer over os.Stdin/os.Stdout.
func NewStdinConfirmer(log logger.LoggerInterface) *StdinConfirmer {
	return &StdinConfirmer{in: bufio.NewReader(os.Stdin), out: os.Stdout, log: log}
}

// Confirm prints prompt and blocks for a y/N answer. Any input other than
// "y" or "yes" (case-insensitive) is treated as a refusal, including EOF or
// a read error.
func (c *StdinConfirmer) Confirm(ctx context.Context, prompt string) bool {
	fmt.Fprintf(c.out, "%s [y/N]: ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil {
		if c.log != nil {
			c.log.Warn(ctx, "stdin confirmer: read failed, refusing", "err", err)
		}
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
