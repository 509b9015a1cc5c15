package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arcwave/benchlink/action"
	"github.com/arcwave/benchlink/device"
	"github.com/arcwave/benchlink/internal/cliconfig"
	"github.com/arcwave/benchlink/logger"
	"github.com/arcwave/benchlink/rail"
	"github.com/arcwave/benchlink/transfer"
	"github.com/arcwave/benchlink/usblink"
)

const longHelp = `Drive a bench programmable-logic device over USB: run action strings
against its channels, benchmark transfers, dump a channel to a file, and
normalize the rail interconnect table.

Action strings chain read, write and conduit operations, separated by
semicolons:

  r0 10 "dump.bin";w1 DEADBEEF;+2;r0 4

Reads accumulate into a hex dump or stream to a file; writes take inline
hex or a quoted file; + selects a conduit mid-line.`

var exampleUsage = strings.TrimSpace(`
  benchlink --vp 1D50:602B -a 'w0 CAFEBABE;r0 4'
  benchlink --vp 1D50:602B --shell --benchmark
  benchlink --vp 1D50:602B --rail f --table track_data.csv
  benchlink --loopback -a 'w5 48656C6C6F;r5 5'
`)

// exitErr pins the process exit code an error should produce. Every error
// reaching main is already reported to the user; main only maps the code.
type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string { return e.err.Error() }
func (e exitErr) Unwrap() error { return e.err }

func transportErr(err error) error { return exitErr{code: action.ExitTransport, err: err} }
func usageErr(err error) error     { return exitErr{code: action.ExitUsage, err: err} }

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "benchlink",
		Short:         "Interact with a bench programmable-logic device",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			return run(cfg, cfgPath, changed)
		},
	}

	root.Flags().StringVarP(&cfg.VP, "vp", "v", cfg.VP, "vendor and product ID of the device (e.g 1D50:602B)")
	root.Flags().StringVarP(&cfg.Action, "action", "a", cfg.Action, "a series of channel actions to execute")
	root.Flags().BoolVarP(&cfg.Shell, "shell", "s", cfg.Shell, "start an interactive command session")
	root.Flags().BoolVarP(&cfg.Benchmark, "benchmark", "b", cfg.Benchmark, "enable benchmarking & checksumming")
	root.Flags().Uint8VarP(&cfg.Conduit, "conduit", "c", cfg.Conduit, "which comm conduit to choose")
	root.Flags().StringVarP(&cfg.DumpLoop, "dumploop", "l", cfg.DumpLoop, "write data from channel ch to file (e.g 5:dump.bin)")
	root.Flags().StringVarP(&cfg.Rail, "rail", "y", cfg.Rail, "rail handshake operation (f = full sweep)")
	root.Flags().BoolVar(&cfg.Loopback, "loopback", cfg.Loopback, "use an in-memory loopback session instead of USB")
	root.Flags().StringVar(&cfg.TablePath, "table", cfg.TablePath, "rail table CSV path")
	root.Flags().BoolVar(&cfg.WatchTable, "watch-table", cfg.WatchTable, "reload the rail table when it changes on disk")
	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: ~/.benchlink/config.toml)")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		var xe exitErr
		if errors.As(err, &xe) {
			os.Exit(xe.code)
		}

		// Flag-parse failures arrive unwrapped and unreported.
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Try 'benchlink --help' for more information.")
		os.Exit(action.ExitUsage)
	}
}

func run(cfg cliconfig.Config, cfgPath string, changed map[string]bool) error {
	if cfgPath == "" {
		cfgPath = cliconfig.DefaultConfigPath()
	}
	if cfgPath != "" {
		fc, err := cliconfig.Load(cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return usageErr(err)
		}
		if err := fc.Apply(&cfg, changed); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return usageErr(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return usageErr(err)
	}

	level, _ := cliconfig.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	log := logger.GetLogger()

	sess, devLabel, err := openSession(cfg, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	if cfg.Action != "" {
		if err := runAction(cfg, sess, log, devLabel); err != nil {
			return err
		}
	}

	if cfg.DumpLoop != "" {
		if err := runDumpLoop(cfg, sess, log); err != nil {
			return err
		}
	}

	if cfg.Rail != "" {
		if err := runRail(cfg, sess, log, devLabel); err != nil {
			return err
		}
	}

	if cfg.Shell {
		if err := runShell(cfg, sess, log, devLabel, os.Stdin); err != nil {
			return err
		}
	}

	return nil
}

func openSession(cfg cliconfig.Config, log logger.Logger) (device.Session, string, error) {
	if cfg.Loopback {
		log.Info("using in-memory loopback session")
		return device.NewLoopback(), "loopback", nil
	}

	vid, pid, err := cliconfig.ParseVP(cfg.VP)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, "", usageErr(err)
	}

	sess, err := usblink.Open(vid, pid, usblink.WithLogger(log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open device at %s: %v\n", cfg.VP, err)
		return nil, "", transportErr(err)
	}
	fmt.Printf("Connected to device %s\n", cfg.VP)

	return sess, cfg.VP, nil
}

// prepare selects the conduit and verifies the device-side logic is up, the
// shared preamble of every channel-traffic operation.
func prepare(sess device.Session, conduit uint8, devLabel string) error {
	if err := sess.SelectConduit(conduit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	ready, err := sess.IsReady()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "The device at %s is not ready to talk - did you forget to configure it?\n", devLabel)
		return usageErr(device.ErrNotReady)
	}

	return nil
}

func newExecutor(cfg cliconfig.Config, sess device.Session, log logger.Logger) (*action.Executor, error) {
	opts := []action.Option{
		action.WithLogger(log),
		action.WithTransferOptions(transfer.WithLogger(log)),
	}
	if cfg.Benchmark {
		opts = append(opts, action.WithBenchmark())
	}

	return action.NewExecutor(sess, opts...)
}

// reportActionErr prints the right face of an action failure: the caret
// diagnostic for positioned errors, the bare message for transport ones.
func reportActionErr(err error) error {
	var aerr *action.Error
	if errors.As(err, &aerr) {
		fmt.Fprint(os.Stderr, aerr.Diagnostic())
		return exitErr{code: aerr.Kind.ExitCode(), err: err}
	}

	fmt.Fprintln(os.Stderr, err)
	return transportErr(err)
}

func runAction(cfg cliconfig.Config, sess device.Session, log logger.Logger, devLabel string) error {
	fmt.Printf("Executing actions on device %s...\n", devLabel)

	if err := prepare(sess, cfg.Conduit, devLabel); err != nil {
		return err
	}

	exec, err := newExecutor(cfg, sess, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	if err := exec.Run(cfg.Action); err != nil {
		return reportActionErr(err)
	}

	return nil
}

// dotWriter forwards chunks to the destination file and prints a progress
// dot per completed chunk.
type dotWriter struct {
	w io.Writer
}

func (d dotWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	if err == nil {
		fmt.Print(".")
	}
	return n, err
}

func runDumpLoop(cfg cliconfig.Config, sess device.Session, log logger.Logger) error {
	channel, path, err := cliconfig.ParseDumpLoop(cfg.DumpLoop)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return usageErr(err)
	}

	fmt.Printf("Copying from channel %d to %s", channel, path)

	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr{code: action.KindCannotSave.ExitCode(), err: err}
	}

	if err := sess.SelectConduit(cfg.Conduit); err != nil {
		f.Close()
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	eng, err := transfer.NewEngine(sess, transfer.WithLogger(log))
	if err != nil {
		f.Close()
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := eng.Dump(ctx, channel, dotWriter{w: f})
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	fmt.Print("\nCaught SIGINT, quitting...\n")
	log.Info("dump loop finished", "channel", channel, "bytes", res.Bytes, "file", path)

	return nil
}

func runRail(cfg cliconfig.Config, sess device.Session, log logger.Logger, devLabel string) error {
	if cfg.Rail != "f" {
		err := fmt.Errorf("unknown rail operation %q (supported: f)", cfg.Rail)
		fmt.Fprintln(os.Stderr, err)
		return usageErr(err)
	}

	fmt.Printf("Executing rail sweep on device %s...\n", devLabel)

	if err := prepare(sess, cfg.Conduit, devLabel); err != nil {
		return err
	}

	store := rail.NewStore(cfg.TablePath, log)
	if err := store.Load(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitErr{code: action.KindCannotLoad.ExitCode(), err: err}
	}
	if cfg.WatchTable {
		if err := store.Watch(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return transportErr(err)
		}
		defer store.Close()
	}

	sweeper, err := rail.NewSweeper(sess, store, rail.WithLogger(log))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := sweeper.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	for i, oc := range rep.Outcomes {
		fmt.Printf("  channel %3d: %s\n", 2*i, oc)
	}
	fmt.Println(rep.String())

	return nil
}

func runShell(cfg cliconfig.Config, sess device.Session, log logger.Logger, devLabel string, in io.Reader) error {
	fmt.Print("\nEntering interactive command mode:\n")

	if err := prepare(sess, cfg.Conduit, devLabel); err != nil {
		return err
	}

	exec, err := newExecutor(cfg, sess, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] == 'q' {
			break
		}

		if err := exec.Run(line); err != nil {
			var aerr *action.Error
			if errors.As(err, &aerr) {
				// Positioned errors are conversational; keep the shell up.
				fmt.Fprint(os.Stderr, aerr.Diagnostic())
				continue
			}

			// Transport failures leave the device state unknown.
			fmt.Fprintln(os.Stderr, err)
			return transportErr(err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return transportErr(err)
	}

	return nil
}
