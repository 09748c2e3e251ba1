package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prism-io/prism/pkg/blobstore"
	"github.com/prism-io/prism/pkg/config"
	"github.com/prism-io/prism/pkg/consensus"
	"github.com/prism-io/prism/pkg/coordinator"
	"github.com/prism-io/prism/pkg/crdtkernel"
	"github.com/prism-io/prism/pkg/keymanager"
	"github.com/prism-io/prism/pkg/log"
	"github.com/prism-io/prism/pkg/metrics"
	"github.com/prism-io/prism/pkg/security"
	"github.com/prism-io/prism/pkg/storage"
	"github.com/prism-io/prism/pkg/transport"
	"github.com/prism-io/prism/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "prismd",
	Short: "prismd - replicated agent-coordination substrate",
	Long: `prismd runs one node of a PRISM cluster: a Raft-replicated log,
a content-addressed blob store, and a CRDT kernel synchronized by
anti-entropy gossip, glued together by a single Coordinator.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"prismd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a PrismConfig YAML file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides config file")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format; overrides config file")

	bootstrapCmd.Flags().String("node-id", "", "Unique node ID (random if unset)")
	bootstrapCmd.Flags().String("bind-addr", "", "Raft bind address, overrides config")
	bootstrapCmd.Flags().String("data-dir", "", "Data directory, overrides config")
	joinCmd.Flags().String("node-id", "", "Unique node ID (random if unset)")
	joinCmd.Flags().String("bind-addr", "", "Raft bind address, overrides config")
	joinCmd.Flags().String("data-dir", "", "Data directory, overrides config")

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(joinCmd)
}

func loadConfig(cmd *cobra.Command) (config.PrismConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if j, _ := cmd.Flags().GetBool("log-json"); j {
		cfg.Logging.JSONOutput = true
	}
	if v, _ := cmd.Flags().GetString("bind-addr"); v != "" {
		cfg.Consensus.BindAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Consensus.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.NodeID = v
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Logging.Level),
		JSONOutput: cfg.Logging.JSONOutput,
	})
	return cfg, nil
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize a brand-new single-node PRISM cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runNode(cfg, func(c *coordinator.Coordinator) error { return c.Bootstrap() })
	},
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Start this node and await a leader-issued AddVoter call",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runNode(cfg, func(c *coordinator.Coordinator) error { return c.Join() })
	},
}

// runNode wires a Coordinator out of cfg, brings it up via start, serves
// metrics and health endpoints, then blocks until an interrupt.
func runNode(cfg config.PrismConfig, start func(*coordinator.Coordinator) error) error {
	self, err := resolveSelf(cfg.NodeID)
	if err != nil {
		return fmt.Errorf("resolve node id: %w", err)
	}

	dataDir := cfg.Consensus.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID(cfg.ClusterID)); err != nil {
		return fmt.Errorf("set cluster encryption key: %w", err)
	}

	caStore, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open CA store: %w", err)
	}
	defer caStore.Close()

	ca := security.NewCertAuthority(caStore)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return fmt.Errorf("save CA: %w", err)
		}
		log.Info("minted new cluster root CA")
	}

	var tlsConfig *tls.Config
	if cfg.Transport.TLSEnabled {
		tlsConfig, err = nodeTLSConfig(ca, self, cfg.Transport.ListenAddr)
		if err != nil {
			return err
		}
	}

	keys := keymanager.New()
	blobs, err := blobstore.NewBoltStore(dataDir, blobstore.Config{
		CompressionEnabled: cfg.BlobStore.CompressionEnabled,
		CompressionKind:    cfg.BlobStore.CompressionKind,
		CompressionLevel:   cfg.BlobStore.CompressionLevel,
		EncryptionEnabled:  cfg.BlobStore.EncryptionEnabled,
		EncryptionKind:     cfg.BlobStore.EncryptionKind,
		KeyPurpose:         cfg.BlobStore.KeyPurpose,
		GCInterval:         cfg.BlobStore.GCInterval,
	}, keys)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer blobs.Close()

	coord := coordinator.New(coordinator.Config{
		Self:            self,
		ConsensusConfig: consensusConfigFrom(cfg, dataDir),
		TransportConfig: transport.Config{ListenAddr: cfg.Transport.ListenAddr, TLSConfig: tlsConfig, DialTimeout: cfg.Transport.DialTimeout},
		SyncConfig: crdtkernel.SyncConfig{
			AntiEntropyInterval: cfg.CRDT.AntiEntropyInterval,
			MaxMessageSize:      cfg.CRDT.MaxMessageSizeBytes,
			MaxRetries:          3,
			Timeout:             10 * cfg.CRDT.AntiEntropyInterval,
			DeltaCompressionEnabled: true,
		},
		Blobs: blobs,
	})

	gc := blobstore.NewGCLoop(blobs, cfg.BlobStore.GCInterval, coord.RootProvider)
	gc.Start()
	defer gc.Stop()

	collector := metrics.NewCollector(coord)
	collector.Start()
	defer collector.Stop()
	metrics.SetVersion(Version)
	metrics.RegisterComponent("consensus", false, "starting")
	metrics.RegisterComponent("blobstore", true, "ready")
	metrics.RegisterComponent("crdtkernel", true, "ready")

	if err := start(coord); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coord.Stop()
	metrics.RegisterComponent("consensus", true, "running")

	errCh := make(chan error, 1)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	log.WithComponent("metrics").Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics endpoint listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		log.Errorf("server error, shutting down", err)
	}

	return nil
}

func resolveSelf(nodeID string) (types.NodeId, error) {
	if nodeID == "" {
		return types.NewNodeId(), nil
	}
	return types.ParseNodeId(nodeID)
}

func consensusConfigFrom(cfg config.PrismConfig, dataDir string) consensus.Config {
	return consensus.Config{
		BindAddr:           cfg.Consensus.BindAddr,
		DataDir:            dataDir,
		HeartbeatTimeout:   cfg.Consensus.HeartbeatInterval,
		ElectionTimeout:    cfg.Consensus.ElectionTimeout,
		CommitTimeout:      cfg.Consensus.CommitTimeout,
		LeaderLeaseTimeout: cfg.Consensus.LeaderLeaseTimeout,
		ApplyTimeout:       cfg.Consensus.ApplyTimeout,
	}
}

// nodeTLSConfig issues this node a fresh certificate under the cluster CA
// and builds a mutually-authenticated TLS config for the peer transport.
func nodeTLSConfig(ca *security.CertAuthority, self types.NodeId, listenAddr string) (*tls.Config, error) {
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host = listenAddr
	}
	cert, err := ca.IssueNodeCertificate(self.String(), "node", []string{host}, nil)
	if err != nil {
		return nil, fmt.Errorf("issue node certificate: %w", err)
	}

	rootCert, err := x509.ParseCertificate(ca.GetRootCACert())
	if err != nil {
		return nil, fmt.Errorf("parse root CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(rootCert)

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}, nil
}
