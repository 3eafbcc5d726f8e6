// Package console runs the foreground command loop that drives export and shutdown.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-recorder/internal/export"
	"github.com/kjstillabower/weather-recorder/internal/lifecycle"
	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/observability"
)

const (
	CommandExport = "export"
	CommandExit   = "exit"

	Prompt         = "Enter command: "
	UnknownCommand = "Unknown command. Available commands: export, exit"
	ShuttingDown   = "Shutting down..."
)

// State is the loop's position in AwaitingCommand → {Exporting, ShuttingDown} → AwaitingCommand | Terminated.
type State int32

const (
	StateAwaitingCommand State = iota
	StateExporting
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingCommand:
		return "awaiting-command"
	case StateExporting:
		return "exporting"
	case StateShuttingDown:
		return "shutting-down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Exporter writes the export file. export.Exporter implements it.
type Exporter interface {
	Export(ctx context.Context) (export.Result, error)
}

// Loop reads commands line by line. Only exact, case-sensitive `export` and `exit` are accepted.
type Loop struct {
	in       io.Reader
	out      io.Writer
	exporter Exporter
	closer   io.Closer
	logger   *zap.Logger
	state    atomic.Int32
}

// New creates a Loop. closer is released once when the loop terminates; it is normally the store.
func New(in io.Reader, out io.Writer, exporter Exporter, closer io.Closer, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{in: in, out: out, exporter: exporter, closer: closer, logger: logger}
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run prompts and dispatches commands until `exit`, end of input, or ctx is done. All three end
// the same way: the process is marked shutting down and closer is released. Returns the close error, if any.
func (l *Loop) Run(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go l.scan(lines, done)

	for {
		l.state.Store(int32(StateAwaitingCommand))
		fmt.Fprint(l.out, Prompt)

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(l.out)
			l.logger.Info("console interrupted", zap.Error(ctx.Err()))
			return l.shutdown()
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(l.out)
			l.logger.Info("console input closed")
			return l.shutdown()
		}

		switch line {
		case CommandExport:
			observability.ConsoleCommandsTotal.WithLabelValues(CommandExport).Inc()
			l.export(ctx)
		case CommandExit:
			observability.ConsoleCommandsTotal.WithLabelValues(CommandExit).Inc()
			return l.shutdown()
		default:
			observability.ConsoleCommandsTotal.WithLabelValues("unknown").Inc()
			fmt.Fprintln(l.out, UnknownCommand)
		}
	}
}

// scan sends each input line, without its line terminator, until the reader ends or done is closed.
func (l *Loop) scan(lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	sc := bufio.NewScanner(l.in)
	for sc.Scan() {
		select {
		case lines <- strings.TrimSuffix(sc.Text(), "\r"):
		case <-done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		l.logger.Warn("console read failed", zap.Error(err))
	}
}

func (l *Loop) export(ctx context.Context) {
	l.state.Store(int32(StateExporting))
	res, err := l.exporter.Export(ctx)
	if err != nil {
		l.logger.Error("export failed", zap.String("category", string(models.CategorizeError(err))), zap.Error(err))
		fmt.Fprintf(l.out, "Export failed: %v\n", err)
		return
	}
	fmt.Fprintf(l.out, "Data exported to %s (%d rows)\n", res.Path, res.Rows)
}

func (l *Loop) shutdown() error {
	l.state.Store(int32(StateShuttingDown))
	lifecycle.SetShuttingDown()
	fmt.Fprintln(l.out, ShuttingDown)
	defer l.state.Store(int32(StateTerminated))

	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		l.logger.Error("close store failed", zap.Error(err))
		return err
	}
	return nil
}
