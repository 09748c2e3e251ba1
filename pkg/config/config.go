// Package config loads PrismConfig from a YAML file with environment
// variable overrides: one sub-struct per subsystem (consensus, blob
// store, CRDT kernel, transport, key manager) plus ambient logging and
// metrics settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prism-io/prism/pkg/types"
)

// ConsensusConfig tunes the replicated log.
type ConsensusConfig struct {
	BindAddr           string        `yaml:"bind_addr"`
	DataDir            string        `yaml:"data_dir"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval_ms"`
	ElectionTimeout    time.Duration `yaml:"election_timeout_ms"`
	CommitTimeout      time.Duration `yaml:"commit_timeout_ms"`
	LeaderLeaseTimeout time.Duration `yaml:"leader_lease_timeout_ms"`
	ApplyTimeout       time.Duration `yaml:"apply_timeout_ms"`
}

// BlobStoreConfig tunes the content-addressed blob store.
type BlobStoreConfig struct {
	CompressionEnabled bool                      `yaml:"compression_enabled"`
	CompressionKind    types.BlobCompressionKind `yaml:"compression_kind"`
	CompressionLevel   int                       `yaml:"compression_level"`
	EncryptionEnabled  bool                      `yaml:"encryption_enabled"`
	EncryptionKind     types.BlobEncryptionKind  `yaml:"encryption_kind"`
	KeyPurpose         string                    `yaml:"key_purpose"`
	GCInterval         time.Duration             `yaml:"gc_interval_ms"`
}

// CRDTConfig tunes the anti-entropy sync loop.
type CRDTConfig struct {
	AntiEntropyInterval time.Duration `yaml:"anti_entropy_interval_ms"`
	MaxMessageSizeBytes int           `yaml:"max_message_size_bytes"`
}

// TransportConfig tunes the peer frame transport.
type TransportConfig struct {
	ListenAddr  string        `yaml:"listen_addr"`
	DialTimeout time.Duration `yaml:"dial_timeout_ms"`
	TLSEnabled  bool          `yaml:"tls_enabled"`
	CAFile      string        `yaml:"ca_file"`
	CertFile    string        `yaml:"cert_file"`
	KeyFile     string        `yaml:"key_file"`
}

// KeyManagerConfig tunes encryption key issuance.
type KeyManagerConfig struct {
	DefaultPurpose   string        `yaml:"default_purpose"`
	RotationInterval time.Duration `yaml:"rotation_interval"`
}

// LoggingConfig tunes zerolog output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// MetricsConfig tunes the Prometheus/health HTTP server.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// PrismConfig is the full node configuration document, one sub-struct
// per subsystem plus the ambient logging/metrics groups.
type PrismConfig struct {
	NodeID     string            `yaml:"node_id"`
	ClusterID  string            `yaml:"cluster_id"`
	Consensus  ConsensusConfig   `yaml:"consensus"`
	BlobStore  BlobStoreConfig   `yaml:"blob_store"`
	CRDT       CRDTConfig        `yaml:"crdt"`
	Transport  TransportConfig   `yaml:"transport"`
	KeyManager KeyManagerConfig  `yaml:"key_manager"`
	Logging    LoggingConfig     `yaml:"logging"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// Default returns PRISM's baked-in defaults: fast LAN/edge timeouts,
// zstd compression on, encryption off.
func Default() PrismConfig {
	return PrismConfig{
		NodeID:    "",
		ClusterID: "prism-cluster",
		Consensus: ConsensusConfig{
			BindAddr:           "127.0.0.1:7946",
			DataDir:            "./prism-data",
			HeartbeatInterval:  500 * time.Millisecond,
			ElectionTimeout:    500 * time.Millisecond,
			CommitTimeout:      50 * time.Millisecond,
			LeaderLeaseTimeout: 250 * time.Millisecond,
			ApplyTimeout:       5 * time.Second,
		},
		BlobStore: BlobStoreConfig{
			CompressionEnabled: true,
			CompressionKind:    types.CompressionZstd,
			CompressionLevel:   6,
			EncryptionEnabled:  false,
			EncryptionKind:     types.EncryptionNone,
			KeyPurpose:         "blob-store",
			GCInterval:         time.Hour,
		},
		CRDT: CRDTConfig{
			AntiEntropyInterval: 2 * time.Second,
			MaxMessageSizeBytes: 4 << 20,
		},
		Transport: TransportConfig{
			ListenAddr:  "127.0.0.1:7947",
			DialTimeout: 5 * time.Second,
		},
		KeyManager: KeyManagerConfig{
			DefaultPurpose:   "blob-store",
			RotationInterval: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			JSONOutput: false,
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9090",
		},
	}
}

// Load reads a YAML document at path over top of Default, then applies
// PRISM_-prefixed environment overrides for the handful of settings
// operators most commonly override per-deployment.
func Load(path string) (PrismConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *PrismConfig) {
	if v := os.Getenv("PRISM_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("PRISM_CLUSTER_ID"); v != "" {
		cfg.ClusterID = v
	}
	if v := os.Getenv("PRISM_BIND_ADDR"); v != "" {
		cfg.Consensus.BindAddr = v
	}
	if v := os.Getenv("PRISM_DATA_DIR"); v != "" {
		cfg.Consensus.DataDir = v
	}
	if v := os.Getenv("PRISM_TRANSPORT_LISTEN_ADDR"); v != "" {
		cfg.Transport.ListenAddr = v
	}
	if v := os.Getenv("PRISM_METRICS_LISTEN_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("PRISM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PRISM_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.JSONOutput = b
		}
	}
}
