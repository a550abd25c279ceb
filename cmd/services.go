package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/opsmesh/kube-discovery/pkg/discovery"
	"github.com/opsmesh/kube-discovery/pkg/filter"
)

var filterExpression string

// servicesCmd represents the services command
var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the known service names",
	Long: `List every service name visible to the resolver, honoring the
configured namespace scope and service label selector. An optional CEL
expression over 'name', 'labels' and 'annotations' filters the catalog
without a rebuild, e.g.:

  kube-discovery services --filter 'labels["tier"] == "backend"'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("filter") {
			props.Filter = filterExpression
		}
		// Compile eagerly so a bad expression fails before any API call.
		if _, err := filter.Compile(props.Filter); err != nil {
			return err
		}

		ctx := ctrl.SetupSignalHandler()

		provider, err := setupTracing(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = provider.Shutdown(ctx) }()

		resolver, err := buildResolver(discovery.WithTracer(provider.Tracer()))
		if err != nil {
			return err
		}

		names, err := resolver.ServiceNames(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.Flags().StringVar(&filterExpression, "filter", "", "CEL expression filtering the service catalog")
}
