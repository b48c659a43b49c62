package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires every subcommand
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}
	queryFlags := &QueryFlags{}
	logsFlags := &LogsFlags{}
	versionsFlags := &VersionsFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createInfoCommand(queryFlags),
		createLogsCommand(queryFlags, logsFlags),
		createPortsCommand(queryFlags),
		createVersionsCommand(queryFlags, versionsFlags),
		createVersionCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "gridnode",
		Short: "Cluster node lifecycle and service orchestration",
		Long: `Gridnode runs a cluster node: its primary dispatch server, auxiliary
services and a management dashboard, with an awaitable start/stop lifecycle.

Examples:
  gridnode serve                                # Start a node (uses --config)
  gridnode serve --node-type=Worker config.toml
  gridnode info --api-url=http://remote:8787    # Query a remote node
  gridnode logs -n 50 --api-url=http://remote:8787`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start a cluster node",
		Long: `Start a cluster node and block until it is signalled to stop.
Configuration is loaded from the TOML file; GRIDNODE_* environment
variables override individual keys.

Examples:
  gridnode serve                        # defaults plus environment
  gridnode serve config.toml
  gridnode serve --node-type=Scheduler --listen=0.0.0.0:8786`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}

	cmd.Flags().StringVar(&serveFlags.NodeType, "node-type", "Node", "node kind reported to peers")
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "override the primary listen address")
	cmd.Flags().BoolVar(&serveFlags.NoDashboard, "no-dashboard", false, "disable the management dashboard")
	return cmd
}

// createInfoCommand creates the info subcommand
func createInfoCommand(queryFlags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show a node's identity and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newQueryClient(queryFlags)
			info, err := c.Info(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(info)
			return nil
		},
	}
	addQueryFlags(cmd, queryFlags)
	return cmd
}

// createLogsCommand creates the logs subcommand
func createLogsCommand(queryFlags *QueryFlags, logsFlags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Fetch a node's captured log entries",
		Long: `Fetch the node's in-memory log buffer. Without -n every captured
entry is printed oldest first; with -n the most recent entries come first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newQueryClient(queryFlags)
			entries, err := c.Logs(cmd.Context(), logsFlags.N)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Println(e.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&logsFlags.N, "lines", "n", 0, "number of most recent entries (0 for all)")
	addQueryFlags(cmd, queryFlags)
	return cmd
}

// createPortsCommand creates the ports subcommand
func createPortsCommand(queryFlags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Show a node's live service ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newQueryClient(queryFlags)
			ports, err := c.ServicePorts(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(ports)
			return nil
		},
	}
	addQueryFlags(cmd, queryFlags)
	return cmd
}

// createVersionsCommand creates the versions subcommand
func createVersionsCommand(queryFlags *QueryFlags, versionsFlags *VersionsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Show a node's version report",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newQueryClient(queryFlags)
			report, err := c.Versions(cmd.Context(), versionsFlags.Packages)
			if err != nil {
				return err
			}
			printJSON(report)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&versionsFlags.Packages, "package", nil, "module path to include (repeatable)")
	addQueryFlags(cmd, queryFlags)
	return cmd
}

// createVersionCommand reports this binary's own version
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gridnode version",
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(ownVersion())
		},
	}
}
