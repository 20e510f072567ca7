package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flags holds the raw values of the persistent flags. They are applied on
// top of the loaded configuration only when set on the command line.
type flags struct {
	configFile   string
	indexesFile  string
	host         string
	port         int
	maxOpenFiles int
	maxProcesses int
	verbose      bool
	quiet        bool
	noColor      bool
	logLevel     string
}

// Execute runs the hastewatch CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	f := &flags{}
	rootCmd := &cobra.Command{
		Use:     "hastewatch",
		Short:   "Keep module maps in sync with the files they index",
		Version: a.version,
		Long: `hastewatch watches the root directories of one or more indexes and keeps
each index's module map up to date as files are added, changed or deleted.

The current state is served on a TCP port: every connection receives
"starting", "updating" or "ready" and is closed. Build tools poll it to know
when the module maps on disk can be trusted.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupCommand(cmd, f)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})

	bindFlags(rootCmd.PersistentFlags(), f)

	rootCmd.SetVersionTemplate("hastewatch {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// bindFlags registers the persistent flags shared by every command.
func bindFlags(pf *pflag.FlagSet, f *flags) {
	pf.StringVar(&f.configFile, "config", "", "config file (default is $HOME/.hastewatch.yaml)")
	pf.StringVar(&f.indexesFile, "indexes", "", "indexes file (default is ./hastewatch.yaml)")
	pf.StringVar(&f.host, "host", "", "status listener host (overrides the indexes file)")
	pf.IntVar(&f.port, "port", 0, "status listener port (overrides the indexes file)")
	pf.IntVar(&f.maxOpenFiles, "max-open-files", 0, "files a rebuild may hold open at once")
	pf.IntVar(&f.maxProcesses, "max-processes", 0, "workers a rebuild may run at once")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	pf.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, f *flags) error {
	set := cmd.Flags().Changed

	if set("config") {
		config, err := LoadConfigFile(f.configFile)
		if err != nil {
			return err
		}
		a.config = config
	}

	c := a.config
	if set("indexes") {
		c.IndexesFile = f.indexesFile
	}
	if set("host") {
		c.Host = f.host
	}
	if set("port") {
		c.Port = f.port
	}
	if set("max-open-files") {
		c.MaxOpenFiles = f.maxOpenFiles
	}
	if set("max-processes") {
		c.MaxProcesses = f.maxProcesses
	}
	if set("verbose") {
		c.Verbose = f.verbose
	}
	if set("quiet") {
		c.Quiet = f.quiet
	}
	if set("no-color") {
		c.NoColor = f.noColor
	}
	if set("log-level") {
		c.LogLevel = f.logLevel
	}

	// Reinitialize logger with updated config
	logger := NewLogger(c)
	a.logger = &logger
	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(a.NewServeCommand())
	rootCmd.AddCommand(a.NewStatusCommand())
	rootCmd.AddCommand(a.NewBuildCommand())
	rootCmd.AddCommand(a.NewVersionCommand())
}

// ExitOnError is a helper that prints an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
