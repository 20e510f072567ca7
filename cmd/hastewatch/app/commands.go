package app

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/agentstation/hastewatch/internal/status"
	"github.com/agentstation/hastewatch/pkg/builder"
	"github.com/agentstation/hastewatch/pkg/constants"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/lifecycle"
)

// NewServeCommand creates the serve command.
func (a *App) NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		GroupID: "core",
		Short:   "Watch the configured indexes and serve their state",
		Long: `Serve constructs every index's module map, binds the status port and
watches every root. It runs until interrupted; rebuilds in flight at that
point are allowed to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.Indexes()
			if err != nil {
				return err
			}
			srv, err := a.Server(f)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}

// NewStatusCommand creates the status command.
func (a *App) NewStatusCommand() *cobra.Command {
	var (
		addr string
		wait time.Duration
	)
	cmd := &cobra.Command{
		Use:     "status",
		GroupID: "core",
		Short:   "Print the state reported by a running server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.statusAddr()
			}
			st, err := queryStatus(cmd.Context(), addr, wait)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), st)
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "status address (default host:port from the configuration)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "poll until the server reports ready, up to this long")
	return cmd
}

// statusAddr derives the status address from the configuration alone; the
// indexes file is consulted when it can be read.
func (a *App) statusAddr() string {
	host, port := constants.DefaultHost, constants.DefaultPort
	if f, err := a.Indexes(); err == nil {
		opts := a.Options(f)
		host, port = opts.Host, opts.Port
	} else {
		if a.config.Host != "" {
			host = a.config.Host
		}
		if a.config.Port != 0 {
			port = a.config.Port
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// queryStatus asks addr for its state. With a positive wait it polls until
// the state is ready or the wait elapses.
func queryStatus(ctx context.Context, addr string, wait time.Duration) (lifecycle.State, error) {
	if wait <= 0 {
		return status.Query(ctx, addr)
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(constants.StatusPollInterval)
	defer ticker.Stop()

	var (
		last    lifecycle.State
		lastErr error
	)
	for {
		st, err := status.Query(ctx, addr)
		switch {
		case err == nil && st == lifecycle.Ready:
			return st, nil
		case err == nil:
			last, lastErr = st, nil
		case last == "":
			lastErr = err
		}
		select {
		case <-ctx.Done():
			// report the last answer we got, or why there was none
			if last != "" {
				return last, nil
			}
			return "", lastErr
		case <-ticker.C:
		}
	}
}

// NewBuildCommand creates the build command.
func (a *App) NewBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "build",
		GroupID: "core",
		Short:   "Construct every index once and write its cache file",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.Indexes()
			if err != nil {
				return err
			}
			opts := a.Options(f)
			limits := builder.Limits{MaxOpenFiles: opts.MaxOpenFiles, MaxProcesses: opts.MaxProcesses}
			b := a.Builder(f)
			p := message.NewPrinter(language.English)

			table := tablewriter.NewTable(cmd.OutOrStdout())
			table.Header("Index", "Resources", "Cache File", "Duration")
			for _, idx := range f.Indexes {
				start := time.Now()
				m, err := b.Construct(cmd.Context(), idx, limits)
				if err != nil {
					return errors.WrapResource("construct", "index", idx.Label(), err)
				}
				if err := b.Persist(cmd.Context(), idx.CacheFile, m); err != nil {
					return errors.WrapResource("persist", "index", idx.Label(), err)
				}
				row := []any{idx.Label(), p.Sprintf("%d", m.Len()), idx.CacheFile, time.Since(start).Round(time.Millisecond).String()}
				if err := table.Append(row...); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hastewatch %s\n", a.version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit:   %s\n", a.commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:    %s\n", a.date)
			fmt.Fprintf(cmd.OutOrStdout(), "  built by: %s\n", a.builtBy)
		},
	}
}
