// Package consensus wraps hashicorp/raft into PRISM's replicated log:
// leader election, AppendEntries replication, snapshotting, and
// single-server membership changes, with an FSM that dispatches committed
// commands to a Coordinator-supplied apply callback instead of touching
// storage directly.
package consensus

import "time"

// Config tunes a Node's Raft transport and timing. The defaults favor
// LAN/edge deployments: faster heartbeat and election timeouts than
// hashicorp/raft's WAN-oriented defaults, aiming for sub-10-second failover.
type Config struct {
	BindAddr string
	DataDir  string

	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	CommitTimeout      time.Duration
	LeaderLeaseTimeout time.Duration
	ApplyTimeout       time.Duration
}

func DefaultConfig(bindAddr, dataDir string) Config {
	return Config{
		BindAddr:           bindAddr,
		DataDir:            dataDir,
		HeartbeatTimeout:   500 * time.Millisecond,
		ElectionTimeout:    500 * time.Millisecond,
		CommitTimeout:      50 * time.Millisecond,
		LeaderLeaseTimeout: 250 * time.Millisecond,
		ApplyTimeout:       5 * time.Second,
	}
}
