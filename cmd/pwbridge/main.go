package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/pwbridge/internal/config"
	"github.com/danmuck/pwbridge/internal/control"
	"github.com/danmuck/pwbridge/internal/host"
	"github.com/danmuck/pwbridge/internal/observability"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pwbridge: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pwbridge",
		Short:         "Bridge a PipeWire registry to UI clients as ordered graph events",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newDiagnosticsCmd(),
		newReadyCmd(),
		newConfigCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge until interrupted or the UI goes away",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServiceConfig(cfgPath)
			if err != nil {
				return err
			}
			observability.InitLogger("pwbridge")
			return host.NewServiceWithConfig(cfg).Run()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default: built-in defaults)")
	return cmd
}

func addrFlag(cmd *cobra.Command, addr *string) {
	cmd.Flags().StringVarP(addr, "addr", "a", control.DefaultAddr, "control endpoint address")
}

func newStatusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bridge phase and counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := control.NewClient(addr, 3*time.Second)
			defer c.Close()
			status, err := c.Status()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	addrFlag(cmd, &addr)
	return cmd
}

func newDiagnosticsCmd() *cobra.Command {
	var (
		addr  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "List recently dropped registry objects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := control.NewClient(addr, 3*time.Second)
			defer c.Close()
			diags, err := c.Diagnostics(limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), diags)
		},
	}
	addrFlag(cmd, &addr)
	cmd.Flags().IntVarP(&limit, "limit", "n", control.DefaultDiagLimit, "maximum entries")
	return cmd
}

func newReadyCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "Signal frontend readiness to a bridge with no UI attached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := control.NewClient(addr, 3*time.Second)
			defer c.Close()
			fired, err := c.Ready()
			if err != nil {
				return err
			}
			if fired {
				fmt.Fprintln(cmd.OutOrStdout(), "ready")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "already ready")
			}
			return nil
		},
	}
	addrFlag(cmd, &addr)
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or check config files",
	}

	var overwrite bool
	template := &cobra.Command{
		Use:   "template [path]",
		Short: "Print the default config, or write it to path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := config.WriteTemplate(args[0], overwrite); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
				return nil
			}
			tmpl, err := config.Template()
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), tmpl)
			return err
		},
	}
	template.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")

	validate := &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a config file strictly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(template, validate)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
