package cmd

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/opsmesh/kube-discovery/internal/system"
	"github.com/opsmesh/kube-discovery/pkg/discovery"
	"github.com/opsmesh/kube-discovery/pkg/tracing"
)

var (
	setupLog   logr.Logger
	kubeconfig string
	namespace  string
	configFile string

	allNamespaces   bool
	primaryPortName string
	verbosity       int

	tracingEnabled      bool
	tracingEndpoint     string
	tracingSamplingRate float64
	tracingInsecure     bool

	props discovery.Properties
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kube-discovery",
	Short: "Resolve Kubernetes service instances from Endpoints and Services",
	Long: `kube-discovery resolves the network-reachable instances of a named
Kubernetes service by expanding its Endpoints subsets into flat instance
records, including port disambiguation, metadata composition and a
security classification per instance.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = flag.CommandLine.Set("v", strconv.Itoa(verbosity))
		ctrl.SetLogger(klog.NewKlogr())
		log := klog.NewKlogr()
		log.V(1).Info("app info", "name", system.Name, "version", system.Version, "commit", system.Commit)

		props = discovery.DefaultProperties()
		if configFile != "" {
			loaded, err := discovery.LoadProperties(configFile)
			if err != nil {
				return err
			}
			props = loaded
		}
		// Flags win over the properties file.
		if cmd.Flags().Changed("all-namespaces") {
			props.AllNamespaces = allNamespaces
		}
		if cmd.Flags().Changed("primary-port-name") {
			props.PrimaryPortName = primaryPortName
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	setupLog = ctrl.Log.WithName("setup")
	klog.InitFlags(nil)

	rootCmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "Path to a kubeconfig file (default: in-cluster or standard loading rules)")
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace", os.Getenv("POD_NAMESPACE"), "Namespace to resolve in (default: kubeconfig context namespace)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML discovery properties file")
	rootCmd.PersistentFlags().BoolVarP(&allNamespaces, "all-namespaces", "A", false, "Query across every namespace instead of the configured one")
	rootCmd.PersistentFlags().StringVar(&primaryPortName, "primary-port-name", "", "Port name preferred when a subset exposes multiple ports")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "Log level (0-9)")

	rootCmd.PersistentFlags().BoolVar(&tracingEnabled, "tracing-enabled", false, "Enable OpenTelemetry tracing")
	rootCmd.PersistentFlags().StringVar(&tracingEndpoint, "tracing-endpoint", "", "OTLP collector endpoint (e.g. otel-collector:4317)")
	rootCmd.PersistentFlags().Float64Var(&tracingSamplingRate, "tracing-sampling-rate", 1.0, "Ratio of traces to sample (0.0-1.0)")
	rootCmd.PersistentFlags().BoolVar(&tracingInsecure, "tracing-insecure", false, "Disable TLS for the OTLP exporter connection")
}

// setupTracing initializes the tracing subsystem from the tracing flags. With
// tracing disabled the returned provider is a no-op.
func setupTracing(ctx context.Context) (*tracing.Provider, error) {
	return tracing.Setup(ctx, tracing.Config{
		Enabled:      tracingEnabled,
		Endpoint:     tracingEndpoint,
		SamplingRate: tracingSamplingRate,
		Insecure:     tracingInsecure,
	}, system.Version)
}

// buildClientset creates a clientset from the kubeconfig loading rules and
// returns it together with the effective namespace, preferring the
// --namespace flag over the kubeconfig context's namespace.
func buildClientset() (kubernetes.Interface, string, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})

	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, "", errors.Wrap(err, "loading kubeconfig")
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, "", errors.Wrap(err, "creating clientset")
	}

	ns := namespace
	if ns == "" {
		ns, _, err = clientConfig.Namespace()
		if err != nil {
			return nil, "", errors.Wrap(err, "determining namespace")
		}
	}
	return client, ns, nil
}

// buildResolver wires the collaborator and the configured properties into a
// Resolver.
func buildResolver(opts ...discovery.Option) (*discovery.Resolver, error) {
	client, ns, err := buildClientset()
	if err != nil {
		return nil, err
	}
	opts = append([]discovery.Option{
		discovery.WithLogger(klog.NewKlogr().WithName("resolver")),
	}, opts...)
	return discovery.NewResolver(discovery.NewCollaborator(client, ns), props, opts...)
}
