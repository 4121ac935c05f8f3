package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/rw"
)

// NewRoutesCommand creates the routes command
func NewRoutesCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the routes of the demo application in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := startedApp(cmd, flags)
			if err != nil {
				return err
			}

			type routeInfo struct {
				Method string `json:"method"`
				Rule   string `json:"rule"`
				Name   string `json:"name"`
			}
			var routes []routeInfo
			for _, r := range app.Table().Routes() {
				routes = append(routes, routeInfo{Method: r.Method, Rule: r.Rule.String(), Name: r.FullName()})
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(routes)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METHOD\tRULE\tNAME")
			for _, r := range routes {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Method, r.Rule, r.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// NewPluginsCommand creates the plugins command
func NewPluginsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List the plugin interfaces of the demo application",
		Long: `Plugins lists every interface declared in the registry of the demo
application with its cardinality, methods and the number of active
implementations, followed by the plugins active in the application scope.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := startedApp(cmd, flags)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INTERFACE\tCARDINALITY\tMETHODS\tACTIVE")
			for _, e := range app.Registry().List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.Path, e.Cardinality, strings.Join(e.Methods, ","), e.Active)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nactive: %s\n", strings.Join(app.Scope().Active(), ", "))
			return nil
		},
	}
	return cmd
}

// startedApp runs the startup phases of the demo application without
// serving it.
func startedApp(cmd *cobra.Command, flags *globalFlags) (*rw.Application, error) {
	app, err := NewDemoApplication(flags.options(cmd)...)
	if err != nil {
		return nil, err
	}
	if err := app.Run(cmd.Context()); err != nil {
		return nil, err
	}
	return app, nil
}
