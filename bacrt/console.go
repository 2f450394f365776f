package bacrt

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Console connects a Runtime to a line oriented terminal.
type Console struct {
	rt  *Runtime
	in  *bufio.Scanner
	out io.Writer
}

func NewConsole(rt *Runtime, in io.Reader, out io.Writer) *Console {
	return &Console{rt: rt, in: bufio.NewScanner(in), out: out}
}

// Run runs the program until it halts or faults, or maxSteps instructions complete.
// Input is read a line at a time whenever a thread asks for it.
func (c *Console) Run(ctx context.Context, maxSteps int) (Result, error) {
	var total Result
	for {
		budget := 0
		if maxSteps > 0 {
			budget = maxSteps - total.Steps
			if budget <= 0 {
				return total, nil
			}
		}
		res := c.rt.Run(ctx, budget)
		total.Steps += res.Steps
		total.Output += res.Output
		total.Halted = res.Halted
		total.Errors = res.Errors
		if _, err := io.WriteString(c.out, res.Output); err != nil {
			return total, err
		}
		switch {
		case !res.OK():
			return total, res.Err()
		case res.Halted:
			return total, nil
		case res.NeedsInput:
			if _, err := io.WriteString(c.out, res.Prompt); err != nil {
				return total, err
			}
			if !c.in.Scan() {
				if err := c.in.Err(); err != nil {
					return total, err
				}
				return total, fmt.Errorf("program wants input: %w", io.ErrUnexpectedEOF)
			}
			c.rt.ProvideInput(c.in.Text())
		case ctx.Err() != nil:
			return total, ctx.Err()
		case maxSteps == 0 || res.Steps < budget:
			// paused
			return total, nil
		}
	}
}
