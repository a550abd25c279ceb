package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/opsmesh/kube-discovery/pkg/discovery"
)

var outputJSON bool

// instancesCmd represents the instances command
var instancesCmd = &cobra.Command{
	Use:   "instances SERVICE [SERVICE...]",
	Short: "Resolve the reachable instances of one or more services",
	Long: `Resolve every reachable instance of the named services. Each instance
is one (subset, address) pair of the service's Endpoints, with the
representative port, the composed metadata map and the security
classification.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		// Resolve concurrently but print in argument order.
		results := make([][]discovery.Instance, len(args))
		var mu sync.Mutex
		group, groupCtx := errgroup.WithContext(ctx)
		for i, serviceName := range args {
			group.Go(func() error {
				instances, err := resolver.Instances(groupCtx, serviceName)
				if err != nil {
					return err
				}
				mu.Lock()
				results[i] = instances
				mu.Unlock()
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		instances := []discovery.Instance{}
		for _, r := range results {
			instances = append(instances, r...)
		}
		return printInstances(os.Stdout, instances)
	},
}

func printInstances(out io.Writer, instances []discovery.Instance) error {
	if outputJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(instances)
	}

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tADDRESS\tSECURE\tINSTANCE-ID")
	for _, instance := range instances {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n",
			instance.ServiceName, instance.Addr(), instance.Secure, instance.InstanceID)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(instancesCmd)
	instancesCmd.Flags().BoolVar(&outputJSON, "json", false, "Print instances as JSON instead of a table")
}
