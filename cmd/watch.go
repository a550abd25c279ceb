package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/opsmesh/kube-discovery/pkg/catalog"
)

var (
	pollInterval time.Duration
	watchEvents  bool
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the service catalog and log a heartbeat on changes",
	Long: `Poll the cluster's endpoint collections and log a heartbeat whenever
the set of backing pods changes. With --watch-events an endpoints watch
additionally triggers rate-limited polls between the periodic ones.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ns, err := buildClientset()
		if err != nil {
			return err
		}
		if props.AllNamespaces {
			ns = ""
		}

		log := klog.NewKlogr().WithName("catalog")
		watcher := catalog.NewWatcher(client, catalog.Config{
			Namespace:    ns,
			PollInterval: pollInterval,
			WatchEvents:  watchEvents,
		})
		watcher.AddSignalFunc(func(podNames []string) error {
			log.Info("catalog heartbeat", "podCount", len(podNames), "pods", podNames)
			return nil
		})

		ctx := ctrl.SetupSignalHandler()
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		setupLog.Info("catalog watcher started", "namespace", ns, "pollInterval", pollInterval)
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&pollInterval, "poll-interval", 30*time.Second, "Delay between periodic catalog polls")
	watchCmd.Flags().BoolVar(&watchEvents, "watch-events", false, "Trigger rate-limited polls from an endpoints watch")
}
