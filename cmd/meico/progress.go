package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"meico/internal/pipeline"
	"meico/internal/services"
)

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// progressObserver prints one line per finished stage.
type progressObserver struct {
	out      io.Writer
	colorize bool
}

func newProgressObserver(out io.Writer) *progressObserver {
	return &progressObserver{out: out, colorize: isTerminal(out)}
}

func (p *progressObserver) StageStarted(context.Context, pipeline.Stage) {}

func (p *progressObserver) StageCompleted(_ context.Context, stage pipeline.Stage, elapsed time.Duration) {
	fmt.Fprintf(p.out, "  %s %-20s %s\n", p.paint(ansiGreen, "ok  "), stage.Label(), formatElapsed(elapsed))
}

func (p *progressObserver) StageFailed(_ context.Context, stage pipeline.Stage, err error) {
	fmt.Fprintf(p.out, "  %s %-20s %s\n", p.paint(ansiRed, "FAIL"), stage.Label(), services.Details(err).Message)
}

func (p *progressObserver) paint(color, label string) string {
	if !p.colorize {
		return label
	}
	return color + label + ansiReset
}

func formatElapsed(d time.Duration) string {
	if d < time.Millisecond {
		return "<1ms"
	}
	return d.Round(time.Millisecond).String()
}
