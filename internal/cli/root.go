// Package cli provides the adbexplorer command tree and interactive shell.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Ning0612/adbexplorer/internal/adapter/local"
	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/config"
	"github.com/Ning0612/adbexplorer/internal/lister"
	"github.com/Ning0612/adbexplorer/internal/logger"
	"github.com/Ning0612/adbexplorer/internal/mutate"
	"github.com/Ning0612/adbexplorer/internal/probe"
	"github.com/Ning0612/adbexplorer/internal/session"
	"github.com/Ning0612/adbexplorer/internal/sizecalc"
	"github.com/Ning0612/adbexplorer/internal/transfer"
)

// Version is set by the main package
var Version = "dev"

type globalFlags struct {
	configPath  string
	serial      string
	adbPath     string
	safeRoot    string
	whatIf      bool
	allowUnsafe bool
	verbose     bool
}

// Option customizes the command tree, mainly for tests
type Option func(*app)

// WithRunner replaces the exec-based bridge runner
func WithRunner(r bridge.Runner) Option {
	return func(a *app) { a.runner = r }
}

// WithFs replaces the local filesystem
func WithFs(fs afero.Fs) Option {
	return func(a *app) { a.fs = fs }
}

// WithIO replaces stdin, stdout and stderr
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *app) {
		a.in = in
		a.out = out
		a.errOut = errOut
	}
}

// app holds everything one invocation shares across commands
type app struct {
	flags globalFlags

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	reader *bufio.Reader
	runner bridge.Runner
	fs     afero.Fs

	cfg    *config.Config
	state  *session.State
	inv    *bridge.Invoker
	prober *probe.Prober
	lister *lister.Lister
	sizes  *sizecalc.Calculator
	mut    *mutate.Mutator
	local  *local.Adapter
	engine *transfer.Engine
	log    logger.Logger
}

// NewRootCmd creates the root command
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	for _, opt := range opts {
		opt(a)
	}

	rootCmd := &cobra.Command{
		Use:   "adbexplorer",
		Short: "Browse and transfer files on an Android device over adb",
		Long: `adbexplorer browses a device filesystem through the adb bridge and moves
files between the device and this machine.

Destructive operations are restricted to the safe root (default /sdcard)
unless --allow-unsafe is given. Use --what-if to print the commands that
would change anything without running them.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup(cmd) },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			a.teardown()
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "Configuration file path")
	pf.StringVarP(&a.flags.serial, "serial", "s", "", "Device serial (default: first connected device)")
	pf.StringVar(&a.flags.adbPath, "adb", "", "Path to the adb executable")
	pf.StringVar(&a.flags.safeRoot, "safe-root", "", "Remote prefix under which changes are allowed")
	pf.BoolVar(&a.flags.whatIf, "what-if", false, "Print destructive commands instead of running them")
	pf.BoolVar(&a.flags.allowUnsafe, "allow-unsafe", false, "Allow changes outside the safe root")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Verbose output (debug logging)")

	rootCmd.AddCommand(
		newDevicesCmd(a),
		newInfoCmd(a),
		newLsCmd(a),
		newPullCmd(a),
		newPushCmd(a),
		newMkdirCmd(a),
		newRenameCmd(a),
		newRmCmd(a),
		newHistoryCmd(a),
		newShellCmd(a),
	)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	return rootCmd
}

// Execute runs the command tree with interrupt handling
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// setup loads configuration, applies flag overrides, starts logging and
// wires the components. Components capture their logger here, so it must
// run after logger.Init.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("serial") {
		cfg.Bridge.Serial = a.flags.serial
	}
	if flags.Changed("adb") {
		cfg.Bridge.Path = a.flags.adbPath
	}
	if flags.Changed("safe-root") {
		cfg.Safety.SafeRoot = a.flags.safeRoot
	}
	if flags.Changed("what-if") {
		cfg.Safety.WhatIf = a.flags.whatIf
	}
	if flags.Changed("allow-unsafe") {
		cfg.Safety.AllowUnsafe = a.flags.allowUnsafe
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	// a previous invocation in this process may have failed before its post-run hook
	logger.Shutdown()
	if err := logger.Init(cfg.LoggerConfig(a.flags.verbose)); err != nil {
		return err
	}
	a.log = logger.With("component", "cli")

	a.state, err = session.New(cfg.Policy(), cfg.Cache.Capacity)
	if err != nil {
		return err
	}
	a.state.Serial = cfg.Bridge.Serial

	if a.runner == nil {
		a.runner = bridge.NewExecRunner(cfg.Bridge.Path)
	}
	a.inv = bridge.NewInvoker(a.runner)
	a.inv.SetNoticeWriter(a.out)
	a.prober = probe.New(a.inv)
	a.lister = lister.New(a.inv, a.prober)
	a.sizes = sizecalc.New(a.inv)
	a.mut = mutate.New(a.inv, a.sizes)
	a.local = local.New(a.fs)
	a.engine = transfer.New(a.inv, a.lister, a.sizes, a.mut, a.local)
	a.engine.TempDir = config.ExpandPath(cfg.Transfer.TempDir)
	a.reader = bufio.NewReader(a.in)

	a.log.Debug("configuration loaded", "adb", cfg.Bridge.Path, "safe_root", cfg.Safety.SafeRoot,
		"what_if", cfg.Safety.WhatIf, "serial", cfg.Bridge.Serial)
	return nil
}

func (a *app) teardown() {
	logger.Shutdown()
}

// connect refreshes device status and probes capabilities once per connection
func (a *app) connect(ctx context.Context) error {
	if _, err := a.inv.RefreshStatus(ctx, a.state, false); err != nil {
		return err
	}
	a.prober.Ensure(ctx, a.state)
	return nil
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
