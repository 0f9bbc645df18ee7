// Package cli implements the smctl command tree.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Aurelien590/StabilityMatrix/internal/config"
	"github.com/Aurelien590/StabilityMatrix/internal/engine"
	"github.com/Aurelien590/StabilityMatrix/internal/packages"
	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// app carries state shared by all subcommands. It is populated by the
// root command's PersistentPreRunE after flags are parsed.
type app struct {
	cfg config.Config
	log zerolog.Logger
	eng *engine.Engine
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

// progressPrinter renders pipeline progress on stderr.
type progressPrinter struct{ log zerolog.Logger }

func (p progressPrinter) Publish(pr types.Progress) {
	ev := p.log.Info()
	if pr.Fraction >= 0 {
		ev = ev.Int("pct", int(pr.Fraction*100))
	}
	ev.Msg(pr.Message)
}

func buildRootCmd(a *app) *cobra.Command {
	var (
		configPath string
		libraryDir string
		logLevel   string
	)
	root := &cobra.Command{
		Use:           "smctl",
		Short:         "Provision and supervise local ML tool packages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (.yaml|.json|.toml)")
	root.PersistentFlags().StringVar(&libraryDir, "library", "", "Library root (default ~/StabilityMatrix)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
		}
		if libraryDir != "" {
			a.cfg.LibraryDir = libraryDir
			a.cfg.PackagesDir = ""
			a.cfg.ModelsDir = ""
		}
		if logLevel != "" {
			a.cfg.LogLevel = logLevel
		}
		if err := a.cfg.Normalize(); err != nil {
			return err
		}
		a.log = newLogger(a.cfg.LogLevel)
		a.eng = engine.New(a.cfg, progressPrinter{log: a.log}, types.OutputFunc(func(line string) {
			fmt.Fprintln(os.Stderr, line)
		}), a.log)
		return nil
	}

	root.AddCommand(
		newSpecsCmd(a),
		newListCmd(a),
		newInstallCmd(a),
		newUpdateCmd(a),
		newUninstallCmd(a),
		newLaunchCmd(a),
		newOptionsCmd(a),
		newServeCmd(a),
		newCompletionCmd(root),
	)
	return root
}

func newSpecsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "specs",
		Short: "List known package specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range a.eng.Specs() {
				backends := make([]string, 0, len(s.Backends))
				for _, b := range s.Backends {
					backends = append(backends, string(b))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-32s %s\n", s.Name, s.DisplayName, strings.Join(backends, ","))
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			installed, err := a.eng.Installed()
			if err != nil {
				return err
			}
			for _, p := range installed {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-8s %-12s %s\n", p.SpecName, p.Backend, p.Version, p.InstallRoot)
			}
			return nil
		},
	}
}

func newInstallCmd(a *app) *cobra.Command {
	var (
		backend  string
		version  string
		recreate bool
	)
	cmd := &cobra.Command{
		Use:   "install <spec>",
		Short: "Install a package into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			pkg, err := a.eng.Install(ctx, packages.InstallRequest{
				Spec:         args[0],
				Backend:      types.Backend(backend),
				Version:      version,
				RecreateVenv: recreate,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s at %s\n", pkg.SpecName, pkg.InstallRoot)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Torch backend: cpu|cuda|rocm|directml|mps")
	cmd.Flags().StringVar(&version, "version", "", "Git ref to install (default: main branch head)")
	cmd.Flags().BoolVar(&recreate, "recreate-venv", false, "Delete and recreate the virtual environment")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <spec>",
		Short: "Update an installed package to the branch head",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.eng.Update(ctx, args[0])
		},
	}
}

func newUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <spec>",
		Short: "Remove an installed package and its shared-folder wiring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.eng.Uninstall(cmd.Context(), args[0])
		},
	}
}

func newLaunchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "launch <spec>",
		Short: "Launch an installed package and supervise it until exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			pkg, err := a.eng.Launch(ctx, args[0])
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				a.log.Info().Str("spec", pkg.SpecName).Msg("interrupt, stopping package")
				_ = a.eng.Stop(pkg.ID)
				<-a.eng.Done(pkg.ID)
			case <-a.eng.Done(pkg.ID):
			}
			if code := a.eng.ExitCode(pkg.ID); code != 0 {
				return fmt.Errorf("%s exited with code %d", pkg.SpecName, code)
			}
			return nil
		},
	}
}

func newOptionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "options <spec> [name=value ...]",
		Short: "Persist launch option overrides for an installed package",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseOverrides(args[1:])
			if err != nil {
				return err
			}
			return a.eng.SetOverrides(args[0], overrides)
		},
	}
}

// parseOverrides turns name=value pairs into override records. A bare
// name is treated as name= (the empty sentinel, clearing the override).
func parseOverrides(pairs []string) ([]types.ArgOverride, error) {
	out := make([]types.ArgOverride, 0, len(pairs))
	for _, p := range pairs {
		name, value, _ := strings.Cut(p, "=")
		if name == "" {
			return nil, fmt.Errorf("invalid override %q, expected name=value", p)
		}
		out = append(out, types.ArgOverride{Name: name, Value: value})
	}
	return out, nil
}

func newCompletionCmd(root *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(os.Stdout) }})
	return completionCmd
}

// MainWithArgs runs the command tree and returns a process exit code.
func MainWithArgs(args []string) int {
	a := &app{}
	root := buildRootCmd(a)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		return 1
	}
	return 0
}

func Main() int { return MainWithArgs(os.Args[1:]) }
