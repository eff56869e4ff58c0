// encoderd tracks the angle of quadrature rotary encoders.
//
// It polls each configured encoder on a fixed cadence, converts step
// counts into degrees and keeps the last known angle of every encoder in
// a small text file under its working directory, so a restart resumes
// from where the hardware was left.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/nerrad567/encoderd/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// CLI is the command line of encoderd.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path." env:"ENCODERD_CONFIG" default:"configs/config.yaml"`
	Version kong.VersionFlag `help:"Show version and exit."`

	Start   StartCmd   `cmd:"" help:"Run the control loop in the foreground."`
	Stop    StopCmd    `cmd:"" help:"Stop the running daemon."`
	Restart RestartCmd `cmd:"" help:"Stop the running daemon, then start in the foreground."`
	Zero    ZeroCmd    `cmd:"" help:"Set every encoder angle to 0.0 (daemon must be stopped)."`
	Status  StatusCmd  `cmd:"" help:"Show daemon state and persisted angles."`
}

// usageError marks command line errors, which exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var uerr usageError
		if errors.As(err, &uerr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run parses args and executes the selected command, separated from main
// for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("encoderd"),
		kong.Description("Quadrature encoder angle tracking daemon."),
		kong.Writers(stdout, os.Stderr),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)
	if err != nil {
		return fmt.Errorf("building command line: %w", err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return usageError{err}
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.BindTo(stdout, (*io.Writer)(nil))
	return kctx.Run(&cli)
}

// loadConfig loads the configuration file named on the command line.
func (c *CLI) loadConfig() (*config.Config, error) {
	path := c.Config
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// StartCmd runs the daemon in the foreground until interrupted.
type StartCmd struct{}

// Run implements the start command.
func (s *StartCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	return newDaemon(cfg).run(ctx)
}

// StopCmd signals the daemon recorded in the PID file and waits for it.
type StopCmd struct {
	Timeout time.Duration `help:"How long to wait for the daemon to exit." default:"10s"`
}

// Run implements the stop command.
func (s *StopCmd) Run(ctx context.Context, cli *CLI, out io.Writer) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	return stopDaemon(ctx, cfg, s.Timeout, out)
}

// RestartCmd stops a running daemon, then starts in the foreground.
type RestartCmd struct {
	Timeout time.Duration `help:"How long to wait for the old daemon to exit." default:"10s"`
}

// Run implements the restart command.
func (r *RestartCmd) Run(ctx context.Context, cli *CLI, out io.Writer) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if err := stopDaemon(ctx, cfg, r.Timeout, out); err != nil {
		return err
	}
	return newDaemon(cfg).run(ctx)
}

// ZeroCmd sets every configured encoder's persisted angle to 0.0.
type ZeroCmd struct{}

// Run implements the zero command.
func (z *ZeroCmd) Run(ctx context.Context, cli *CLI, out io.Writer) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	return zeroAngles(ctx, cfg, out)
}

// StatusCmd prints whether the daemon runs and the persisted angles.
type StatusCmd struct{}

// Run implements the status command.
func (s *StatusCmd) Run(ctx context.Context, cli *CLI, out io.Writer) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	return printStatus(ctx, cfg, out)
}
