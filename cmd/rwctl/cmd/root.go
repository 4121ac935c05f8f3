package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/rw"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("rwctl v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

type globalFlags struct {
	configFiles []string
	envPrefix   string
	verbose     bool
}

// NewRootCommand creates the root command for the rwctl application
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "rwctl",
		Short: "rwctl - run and inspect rw applications",
		Long: `rwctl runs the rw demo application and inspects what it is made of:
its routing table and the plugin interfaces declared in its registry.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().StringSliceVarP(&flags.configFiles, "config", "c", nil, "Config files (YAML, TOML or JSON), merged in order")
	cmd.PersistentFlags().StringVar(&flags.envPrefix, "env-prefix", "RW", "Prefix of environment overrides (PREFIX_CATEGORY__KEY)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug output")

	cmd.AddCommand(NewServeCommand(flags))
	cmd.AddCommand(NewRoutesCommand(flags))
	cmd.AddCommand(NewPluginsCommand(flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(PrintVersion())
		},
	})

	return cmd
}

func (f *globalFlags) logger(cmd *cobra.Command) rw.Logger {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (f *globalFlags) options(cmd *cobra.Command) []rw.Option {
	opts := []rw.Option{rw.WithLogger(f.logger(cmd))}
	if len(f.configFiles) > 0 {
		opts = append(opts, rw.WithConfigFiles(f.configFiles...))
	}
	if f.envPrefix != "" {
		opts = append(opts, rw.WithEnvPrefix(f.envPrefix))
	}
	return opts
}
