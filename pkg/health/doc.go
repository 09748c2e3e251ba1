/*
Package health provides reachability checks for PRISM cluster peers: can this node's
transport port be dialed, does a peer's metrics endpoint respond. These are diagnostic
probes a Coordinator or CLI command runs before trusting a peer address, distinct from
pkg/metrics's own component health registry, which tracks this node's own subsystem
status for /health, /ready, and /live.

# Architecture

The health check system follows a modular checker design:

	┌─────────────────────────────────────────────────────────────┐
	│                   Health Check System                       │
	└─────┬──────────────────────────────────────────────────────┘
	      │
	      ▼
	┌──────────────────────────────────────────────────────────────┐
	│                     Checker Interface                        │
	│  • Check(ctx) Result                                         │
	│  • Type() CheckType                                          │
	└────────┬─────────────────────────────────────────────────────┘
	         │
	    ┌────┴──────┐
	    ▼           ▼
	┌────────┐  ┌──────┐
	│  HTTP  │  │ TCP  │
	│Checker │  │Checker│
	└────────┘  └──────┘
	     │          │
	     ▼          ▼
	  GET /    Connect
	  /health   :port

## Health Check Flow

 1. Coordinator.AddPeer registers a dial address for a new cluster member with the
    transport and the anti-entropy peer set
 2. A TCPChecker then probes the transport port in a background goroutine
 3. A failed probe is logged as a warning; the peer is still registered (the transport
    layer itself retries dials independently) but the operator gets early signal

# Health Check Types

## HTTP Health Checks

HTTP checks perform HTTP requests to verify a peer's metrics endpoint is serving:

	Check Type: HTTP
	Configuration:
	├── URL: http://peer-addr:9090/health
	├── Method: GET, POST, HEAD
	├── Headers: Custom HTTP headers
	├── Expected Status: 200-399 (configurable)
	└── Timeout: 10 seconds

Example responses:
  - 200 OK → Healthy
  - 503 Service Unavailable → Unhealthy
  - Connection timeout → Unhealthy
  - Connection refused → Unhealthy

## TCP Health Checks

TCP checks verify that a peer's transport port is listening and accepting connections:

	Check Type: TCP
	Configuration:
	├── Address: peer-addr:7947
	├── Timeout: 5 seconds
	└── Connection test only (no data sent)

# Core Components

## Checker Interface

All health checkers implement this interface:

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

This allows polymorphic health checking - workers don't need to know the
check type, just call Check() and interpret the Result.

## Result Structure

All checks return a standardized Result:

	type Result struct {
		Healthy   bool          // Check passed?
		Message   string        // Human-readable message
		CheckedAt time.Time     // When check ran
		Duration  time.Duration // How long check took
	}

## Status Tracking

Status tracks health over time:

	type Status struct {
		ConsecutiveFailures  int    // Failure streak
		ConsecutiveSuccesses int    // Success streak
		LastCheck            time.Time
		LastResult           Result
		Healthy              bool   // Current health state
		StartedAt            time.Time
	}

The status implements hysteresis - multiple failures required before marking
unhealthy, preventing flapping from transient issues.

## Configuration

Health checks are configured per checker instance:

	type Config struct {
		Interval    time.Duration  // Time between checks (default: 30s)
		Timeout     time.Duration  // Max check duration (default: 10s)
		Retries     int            // Failures before unhealthy (default: 3)
		StartPeriod time.Duration  // Grace period for slow startup (default: 0)
	}

# Usage Examples

## HTTP Health Check

	import "github.com/prism-io/prism/pkg/health"

	// Create HTTP checker
	checker := health.NewHTTPChecker("http://192.168.1.10:8080/health")

	// Customize (optional)
	checker.WithMethod("GET").
		WithHeader("User-Agent", "prism-health/1.0").
		WithStatusRange(200, 299).  // Only 2xx is healthy
		WithTimeout(5 * time.Second)

	// Perform check
	ctx := context.Background()
	result := checker.Check(ctx)

	if result.Healthy {
		fmt.Printf("✓ Healthy: %s (took %v)\n", result.Message, result.Duration)
	} else {
		fmt.Printf("✗ Unhealthy: %s\n", result.Message)
	}

	// Output:
	// ✓ Healthy: HTTP 200 OK (took 12ms)

## TCP Health Check

	// Create TCP checker for a peer's transport port
	checker := health.NewTCPChecker("192.168.1.10:7947")
	checker.WithTimeout(3 * time.Second)

	// Check if the peer is accepting connections
	result := checker.Check(ctx)

	if result.Healthy {
		fmt.Println("peer is accepting connections")
	} else {
		fmt.Printf("peer unreachable: %s\n", result.Message)
	}

	// Output:
	// peer is accepting connections

## Health Status Tracking

	// Create status tracker
	status := health.NewStatus()

	// Configure health check
	config := health.Config{
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		Retries:     3,
		StartPeriod: 30 * time.Second,
	}

	// Simulate health check loop
	checker := health.NewHTTPChecker("http://app:8080/health")

	for {
		// Check if in startup grace period
		if status.InStartPeriod(config) {
			fmt.Println("In startup period, skipping health check")
			time.Sleep(config.Interval)
			continue
		}

		// Run health check
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		result := checker.Check(ctx)
		cancel()

		// Update status
		status.Update(result, config)

		// Check if unhealthy
		if !status.Healthy {
			fmt.Printf("peer unhealthy after %d failures\n",
				status.ConsecutiveFailures)
			break
		}

		time.Sleep(config.Interval)
	}

# Integration Points

## Coordinator Integration

AddPeer registers the peer and then runs a TCPChecker against its transport
address in a background goroutine, so a misconfigured address shows up as a
warning right away rather than only as a silent dial failure in the
anti-entropy loop:

	checker := health.NewTCPChecker(addr)
	result := checker.Check(ctx)
	if !result.Healthy {
		log.WithComponent("coordinator").Warn("peer unreachable at registration: " + result.Message)
	}
	// peer is still registered; the transport layer retries dials independently

# Design Patterns

## Strategy Pattern

Different checkers implement the Checker interface:

	Checker (interface)
	├── HTTPChecker (HTTP strategy)
	└── TCPChecker (TCP strategy)

This allows runtime selection of check type without code changes.

## Builder Pattern

Checkers use fluent builders for configuration:

	checker := NewHTTPChecker(url).
		WithMethod("POST").
		WithHeader("Auth", "token").
		WithTimeout(5 * time.Second)

This provides clean, readable configuration with optional parameters.

## Hysteresis Pattern

Status tracking implements hysteresis to prevent flapping:

	Healthy → 1 failure → Still healthy
	Healthy → 2 failures → Still healthy
	Healthy → 3 failures → Unhealthy!

	Unhealthy → 1 success → Healthy!

This prevents oscillation from transient issues while still responding to
persistent problems.

## Context-Based Cancellation

All checks respect context deadlines:

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := checker.Check(ctx)  // Respects timeout

This enables proper timeout handling and resource cleanup.

# Performance Characteristics

## HTTP Check Performance

HTTP checks are network-bound:

  - Latency: 1-100ms (depends on network + app)
  - Memory: ~10KB per check (HTTP client)
  - CPU: Minimal (mostly waiting for I/O)

For 100 checks/second:
  - ~1% CPU usage
  - ~1MB memory

## TCP Check Performance

TCP checks are very lightweight:

  - Latency: 1-10ms (just TCP handshake)
  - Memory: ~1KB per check
  - CPU: Negligible

TCP checks are ideal for high-frequency monitoring.

## Recommended Check Intervals

  - HTTP: 10-30 seconds
  - TCP: 5-15 seconds

# Troubleshooting

## False Positive Failures

If a healthy peer is marked unhealthy:

1. Check timeout settings:
  - Timeout too short for slow responses?
  - Network latency accounted for?
  - Increase timeout to 2x expected duration

2. Check retry count:
  - Retries = 1 → Very sensitive to transients
  - Retries = 3 → More tolerant (recommended)
  - Increase retries for flaky networks

3. Check StartPeriod:
  - App takes 60s to start but StartPeriod = 10s?
  - Set StartPeriod > app startup time
  - Monitor app startup logs

## Health Checks Too Slow

If health checks impact coordinator startup or AddPeer latency:

1. Tune check timeout:
  - A TCPChecker timeout should be well under the RPC deadline calling it
  - Reduce timeout rather than letting AddPeer block on a dead peer

2. Use the lightest check that's still reliable:
  - TCP is cheaper than HTTP; prefer it for reachability-only probes

# Security Considerations

  - Probe endpoints should not require authentication
  - Run probes only against addresses already supplied by a trusted
    cluster-membership operation (AddPeer), never arbitrary user input

# See Also

  - pkg/coordinator - Runs TCPChecker from AddPeer
  - pkg/metrics - Separate component health registry for /health, /ready, /live
*/
package health
