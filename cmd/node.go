package cmd

import (
	gocontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/srctl/srnode/internal/config"
	"github.com/srctl/srnode/internal/coordinator"
	"github.com/srctl/srnode/internal/logclient"
	"github.com/srctl/srnode/internal/logging"
	"github.com/srctl/srnode/internal/metrics"
	"github.com/srctl/srnode/internal/output"
	"github.com/srctl/srnode/internal/statusapi"
)

var (
	nodeLogLevel string
	nodeLogJSON  bool
)

var nodeCmd = &cobra.Command{
	Use:     "node",
	Short:   "Run or inspect a sequenced writer node",
	GroupID: groupNode,
}

var nodeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sequenced writer node, serving the read-only status API",
	Long: `run starts a coordinator with the configured number of shards, bootstraps
every shard's Store from the internal topic, and serves /healthz, /status
and /metrics until interrupted.

Configure via schema-registry-node.yaml or SRNODE_*-prefixed environment
variables (brokers, topic, node_id, retry_budget, shards, status_port).`,
	GroupID: groupNode,
	RunE:    runNodeRun,
}

var nodeCatchupCmd = &cobra.Command{
	Use:   "catchup",
	Short: "Catch up every shard's Store to the current log tail and exit",
	Long: `catchup builds a coordinator, bootstraps every shard's Store from offset 0
to the current tail, prints the resulting loaded offsets, and exits without
serving the status API. Useful for verifying connectivity and replay cost
before running the node continuously.`,
	GroupID: groupNode,
	RunE:    runNodeCatchup,
}

var nodeInspectCmd = &cobra.Command{
	Use:     "inspect <subject>",
	Short:   "Print a subject's projected state after catching up to the log tail",
	Args:    cobra.ExactArgs(1),
	GroupID: groupNode,
	RunE:    runNodeInspect,
}

func init() {
	nodeCmd.PersistentFlags().StringVar(&nodeLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	nodeCmd.PersistentFlags().BoolVar(&nodeLogJSON, "log-json", false, "Emit JSON logs instead of console logs")

	nodeCmd.AddCommand(nodeRunCmd, nodeCatchupCmd, nodeInspectCmd)
	rootCmd.AddCommand(nodeCmd)
}

func buildLogClient(wc *config.WriterConfig) (logclient.Client, error) {
	if len(wc.Kafka.Brokers) == 0 && len(wc.Brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers configured; set brokers in schema-registry-node.yaml or SRNODE_BROKERS")
	}
	brokers := wc.Brokers
	if len(brokers) == 0 {
		brokers = wc.Kafka.Brokers
	}
	kc, err := logclient.New(logclient.Config{
		Brokers:       brokers,
		Topic:         wc.Topic,
		SASLMechanism: wc.Kafka.SASL.Mechanism,
		SASLUser:      wc.Kafka.SASL.Username,
		SASLPassword:  wc.Kafka.SASL.Password,
		TLSEnabled:    wc.Kafka.TLS.Enabled,
		TLSSkipVerify: wc.Kafka.TLS.SkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("build Kafka client: %w", err)
	}
	return kc, nil
}

func withShutdownSignal(parent gocontext.Context) (gocontext.Context, gocontext.CancelFunc) {
	ctx, cancel := gocontext.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		output.Warning("\nReceived %s, shutting down gracefully...", sig)
		cancel()
		sig = <-sigCh
		output.Error("Received %s, forcing exit", sig)
		os.Exit(1)
	}()
	return ctx, cancel
}

func runNodeRun(cmd *cobra.Command, args []string) error {
	wc, err := config.LoadWriterConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(nodeLogLevel, nodeLogJSON)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	logClient, err := buildLogClient(wc)
	if err != nil {
		return err
	}
	defer logClient.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	coord := coordinator.New(logClient, coordinator.Config{
		NodeID:      wc.NodeID,
		Shards:      wc.Shards,
		RetryBudget: wc.RetryBudget,
		Logger:      logger,
		Metrics:     m,
	})

	ctx, cancel := withShutdownSignal(gocontext.Background())
	defer cancel()

	output.Header("Sequenced Writer Node")
	output.Info("Node ID: %s", wc.NodeID)
	output.Info("Topic: %s", wc.Topic)
	output.Info("Shards: %d", wc.Shards)
	output.Info("Retry budget: %d", wc.RetryBudget)

	logger.Info("bootstrapping shards from internal topic")
	if err := coord.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	status := statusapi.New(coord, statusapi.Config{
		NodeID:      wc.NodeID,
		RetryBudget: wc.RetryBudget,
		Addr:        fmt.Sprintf(":%d", wc.StatusPort),
		Logger:      logger,
		Gatherer:    registry,
	})

	go coord.Run(ctx)

	output.Info("Status API listening on :%d", wc.StatusPort)
	if err := status.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("status API: %w", err)
	}
	return nil
}

func runNodeCatchup(cmd *cobra.Command, args []string) error {
	wc, err := config.LoadWriterConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(nodeLogLevel, nodeLogJSON)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	logClient, err := buildLogClient(wc)
	if err != nil {
		return err
	}
	defer logClient.Close()

	m := metrics.New(prometheus.NewRegistry())
	coord := coordinator.New(logClient, coordinator.Config{
		NodeID:      wc.NodeID,
		Shards:      wc.Shards,
		RetryBudget: wc.RetryBudget,
		Logger:      logger,
		Metrics:     m,
	})

	ctx, cancel := withShutdownSignal(gocontext.Background())
	defer cancel()

	if err := coord.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	output.Header("Catchup complete")
	for i := 0; i < coord.ShardCount(); i++ {
		sh := coord.Shard(i)
		output.Info("shard %d: loaded_offset=%d", sh.ID, sh.Store().LoadedOffset())
	}
	return nil
}

func runNodeInspect(cmd *cobra.Command, args []string) error {
	subject := args[0]

	wc, err := config.LoadWriterConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(nodeLogLevel, nodeLogJSON)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	logClient, err := buildLogClient(wc)
	if err != nil {
		return err
	}
	defer logClient.Close()

	m := metrics.New(prometheus.NewRegistry())
	coord := coordinator.New(logClient, coordinator.Config{
		NodeID:      wc.NodeID,
		Shards:      1,
		RetryBudget: wc.RetryBudget,
		Logger:      logger,
		Metrics:     m,
	})

	ctx, cancel := withShutdownSignal(gocontext.Background())
	defer cancel()

	if err := coord.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	st := coord.Shard(0).Store()
	versions, err := st.GetVersions(subject, true)
	if err != nil {
		return fmt.Errorf("inspect %q: %w", subject, err)
	}

	type versionInfo struct {
		Version int64  `json:"version" yaml:"version"`
		ID      int64  `json:"id" yaml:"id"`
		Type    string `json:"type" yaml:"type"`
		Deleted bool   `json:"deleted" yaml:"deleted"`
	}
	type subjectInfo struct {
		Subject       string        `json:"subject" yaml:"subject"`
		Deleted       bool          `json:"deleted" yaml:"deleted"`
		Compatibility string        `json:"compatibility" yaml:"compatibility"`
		Versions      []versionInfo `json:"versions" yaml:"versions"`
	}

	info := subjectInfo{
		Subject:       subject,
		Deleted:       st.IsSubjectDeleted(subject),
		Compatibility: st.GetCompatibility(subject),
	}
	for _, v := range versions {
		entry, err := st.GetSubjectSchema(subject, v, true)
		if err != nil {
			return fmt.Errorf("inspect %q version %d: %w", subject, v, err)
		}
		info.Versions = append(info.Versions, versionInfo{
			Version: v,
			ID:      entry.ID,
			Type:    entry.SchemaType,
			Deleted: entry.Deleted,
		})
	}

	if outputFormat == "table" {
		output.Header("Subject %s", subject)
		output.Info("deleted: %v", info.Deleted)
		output.Info("compatibility: %s", info.Compatibility)
		rows := make([][]string, 0, len(info.Versions))
		for _, v := range info.Versions {
			rows = append(rows, []string{
				fmt.Sprintf("%d", v.Version),
				fmt.Sprintf("%d", v.ID),
				v.Type,
				fmt.Sprintf("%v", v.Deleted),
			})
		}
		output.PrintTable([]string{"Version", "ID", "Type", "Deleted"}, rows)
		return nil
	}
	return output.NewPrinter(outputFormat).Print(info)
}
