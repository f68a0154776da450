// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	core "github.com/forkbombeu/emuready/internal/avd"
	"github.com/forkbombeu/emuready/internal/config"
	"github.com/forkbombeu/emuready/internal/preflight"
	"github.com/forkbombeu/emuready/internal/ready"
)

// Set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	shutdown := setupTracing(ctx, stderr)
	defer shutdown()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return ready.ExitCode(err)
}

// cli carries what the persistent pre-run resolves for every subcommand.
type cli struct {
	stdout, stderr io.Writer

	configPath string
	logLevel   string

	env  core.Env
	file *config.File
}

func (c *cli) setup(cmd *cobra.Command) error {
	c.env = core.Detect()

	level := os.Getenv("EMUREADY_LOG_LEVEL")
	if path := config.Path(c.configPath); path != "" {
		f, err := config.Load(path)
		if err != nil {
			return err
		}
		c.file = f
		if f.LogLevel != "" {
			level = f.LogLevel
		}
	}
	if flag := cmd.Flag("log-level"); flag != nil && flag.Changed {
		level = c.logLevel
	}
	if level != "" {
		return core.SetLogLevel(level)
	}
	return nil
}

// options layers defaults, the config file and explicitly set flags.
func (c *cli) options(cmd *cobra.Command, flags *config.Flags) ready.Options {
	opts := ready.DefaultOptions()
	if c.file != nil {
		c.file.Apply(&opts, &c.env)
	}
	flags.Apply(cmd.Flags(), &opts)
	return opts
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "emuready",
		Short: "Bring an Android emulator to a booted state and run the dev server on it",
		Long: `emuready makes sure the Android virtual device exists, starts it when no
device is connected, waits until adb sees it and Android reports
sys.boot_completed=1, then runs the dev server (dx serve --platform android)
against it, retrying the dev server once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file, YAML or JSONC (default: $"+config.EnvVar+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error (default: $EMUREADY_LOG_LEVEL)")

	root.AddCommand(
		c.upCmd(),
		c.waitCmd(),
		c.devicesCmd(),
		c.stopCmd(),
		c.doctorCmd(),
		versionCmd(stdout),
	)
	return root
}

func (c *cli) upCmd() *cobra.Command {
	var flags config.Flags
	cmd := &cobra.Command{
		Use:   "up [flags] [-- dev-server-args...]",
		Short: "Ready the emulator, then run the dev server against it",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.options(cmd, &flags)
			_, err := ready.New(c.env).Up(cmd.Context(), opts, args)
			return err
		},
	}
	flags.Bind(cmd.Flags())
	return cmd
}

func (c *cli) waitCmd() *cobra.Command {
	var flags config.Flags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Ready the emulator and print its serial without running the dev server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.options(cmd, &flags)
			res, err := ready.New(c.env).Wait(cmd.Context(), opts)
			if asJSON {
				if jsonErr := c.printJSON(res); jsonErr != nil && err == nil {
					err = jsonErr
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, res.Serial)
			return nil
		},
	}
	flags.Bind(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full readiness result as JSON")
	return cmd
}

func (c *cli) devicesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ps"},
		Short:   "List devices adb knows about, with AVD name, port, PID and boot state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := core.NewADB(c.env).ListRunning(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return c.printJSON(procs)
			}
			fmt.Fprint(c.stdout, renderDevices(procs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func (c *cli) stopCmd() *cobra.Command {
	var name, serial string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running emulator by --name or --serial",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serial == "" && name == "" {
				return errors.New("use --name or --serial")
			}
			adb := core.NewADB(c.env)
			if serial == "" {
				var err error
				if serial, err = adb.SerialForName(cmd.Context(), name); err != nil {
					return err
				}
			}
			if err := adb.StopBySerial(cmd.Context(), serial); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Stopped %s\n", serial)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "AVD name")
	cmd.Flags().StringVar(&serial, "serial", "", "emulator serial (e.g., emulator-5554)")
	return cmd
}

func (c *cli) doctorCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that adb, the emulator, the SDK tools and the dev server are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.file != nil {
				c.file.Apply(&ready.Options{}, &c.env)
			}
			results := preflight.Run(cmd.Context(), c.env)
			if asJSON {
				if err := c.printJSON(results); err != nil {
					return err
				}
			} else {
				fmt.Fprint(c.stdout, results.Render())
			}
			if results.HasErrors {
				return errors.New("required tools are missing")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func versionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config or logging needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "emuready %s\n", version)
			fmt.Fprintf(stdout, "  commit: %s\n", commit)
			fmt.Fprintf(stdout, "  built:  %s\n", date)
		},
	}
}
