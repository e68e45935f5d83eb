package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

var IR_SUFFIX = ".ll"
var IR_DIR = "ir"

// defaultLJCache gets env variable LJCACHE
// if it is not set sets it to default value for windows, mac, linux
func defaultLJCache() string {
	if env := os.Getenv("LJCACHE"); env != "" {
		return env
	}

	homeDir, _ := os.UserHomeDir()
	var ljcache string
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			ljcache = filepath.Join(localAppData, "lanejit")
			return ljcache
		}
		ljcache = filepath.Join(homeDir, "AppData", "Local", "lanejit")

	case "darwin":
		ljcache = filepath.Join(homeDir, "Library", "Caches", "lanejit")

	default: // Linux and others
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			ljcache = filepath.Join(xdg, "lanejit")
			return ljcache
		}
		ljcache = filepath.Join(homeDir, ".cache", "lanejit")
	}

	return ljcache
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// setupLogging installs the default slog handler. Logs go to stderr so IR
// and simulation output on stdout stay clean.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// NewRootCommand creates the root command for the lanejit CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lanejit",
		Short: "lanejit - grid intrinsic lowering",
		Long: `Lower thread-hierarchy and bit intrinsics of grid-parallel kernels.

A kernel is described by a YAML manifest listing its launch geometry,
parameters and intrinsic occurrences. lanejit emits LLVM IR for it or
evaluates it lane by lane.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints the error once
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewIRCommand())
	cmd.AddCommand(NewSimCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
