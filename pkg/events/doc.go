/*
Package events provides an in-memory event broker for PRISM's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting cluster
events to interested subscribers. It supports topic-based subscriptions with
asynchronous event delivery, enabling loose coupling between PRISM components
for state changes, notifications, and monitoring.

# Architecture

PRISM's event system provides non-blocking pub/sub messaging with buffered
channels:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │                                              │          │
	│  │  Consensus Events:                          │          │
	│  │    - consensus.leader_elected               │          │
	│  │    - consensus.term_advanced                │          │
	│  │    - consensus.entry_committed              │          │
	│  │    - consensus.entry_applied                │          │
	│  │    - consensus.snapshot_taken               │          │
	│  │                                              │          │
	│  │  Cluster Events:                            │          │
	│  │    - cluster.node_joined                    │          │
	│  │    - cluster.node_removed                   │          │
	│  │                                              │          │
	│  │  Blob Store Events:                         │          │
	│  │    - blobstore.blob_stored                  │          │
	│  │    - blobstore.gc_run                       │          │
	│  │    - blobstore.integrity_failed             │          │
	│  │                                              │          │
	│  │  CRDT Kernel Events:                        │          │
	│  │    - crdtkernel.merged                      │          │
	│  │    - crdtkernel.sync_completed               │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │                                              │          │
	│  │  Metrics: Count events for dashboards       │          │
	│  │  Audit log: Record cluster membership changes│         │
	│  │  Webhooks: Send notifications (future)      │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - ID: Unique event identifier
  - Type: Event type (consensus.leader_elected, blobstore.blob_stored, etc.)
  - Timestamp: When event occurred
  - Message: Human-readable description
  - Metadata: Key-value pairs for additional context

Subscriber:
  - Channel that receives Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

Event Types:
  - Consensus: leader elected, term advanced, entry committed/applied, snapshot taken
  - Cluster: node joined, node removed
  - Blob store: blob stored, GC run, integrity failed
  - CRDT kernel: merged, sync completed

# Event Flow

Publish Flow:
 1. Publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event
 4. Event sent to all subscriber channels
 5. Subscribers receive event asynchronously
 6. Full subscriber buffers skip (no blocking)

Subscribe Flow:
 1. Subscriber calls broker.Subscribe()
 2. New buffered channel created
 3. Channel registered in subscriber map
 4. Subscriber channel returned
 5. Subscriber receives events via channel
 6. Subscriber processes events in own goroutine

Unsubscribe Flow:
 1. Subscriber calls broker.Unsubscribe(channel)
 2. Channel removed from subscriber map
 3. Channel closed
 4. Subscriber stops receiving events

# Usage

Creating and Starting Broker:

	import "github.com/prism-io/prism/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Publishing Events:

	event := &events.Event{
		ID:      "evt-123",
		Type:    events.EventLeaderElected,
		Message: "node-1 elected leader for term 7",
		Metadata: map[string]string{
			"replica_id": "node-1",
			"term":       "7",
		},
	}
	broker.Publish(event)

Filtering Events by Type:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventLeaderElected:
				handleLeaderElected(event)
			case events.EventIntegrityFailed:
				handleIntegrityFailed(event)
			default:
				// Ignore other events
			}
		}
	}()

Complete Example:

	package main

	import (
		"fmt"
		"time"
		"github.com/prism-io/prism/pkg/events"
	)

	func main() {
		// Create and start broker
		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		// Subscribe to events
		sub := broker.Subscribe()
		defer broker.Unsubscribe(sub)

		// Process events in background
		go func() {
			for event := range sub {
				fmt.Printf("[%s] %s: %s\n",
					event.Timestamp.Format("15:04:05"),
					event.Type,
					event.Message)
			}
		}()

		// Publish events
		broker.Publish(&events.Event{
			Type:    events.EventLeaderElected,
			Message: "node-1 elected leader for term 7",
		})

		broker.Publish(&events.Event{
			Type:    events.EventIntegrityFailed,
			Message: "blob blake3:abcd... failed checksum on retrieve",
			Metadata: map[string]string{
				"hash":  "blake3:abcd...",
				"error": "checksum mismatch",
			},
		})

		// Wait for events to be processed
		time.Sleep(100 * time.Millisecond)
	}

# Integration Points

This package integrates with:

  - pkg/coordinator: Starts/stops the broker and publishes EventNodeJoined,
    EventNodeRemoved, EventSnapshotTaken, EventEntryApplied and EventBlobStored;
    the other event types below are declared but nothing in this module publishes them

# Event Types Catalog

Consensus Events:

EventLeaderElected:
  - Published when: This node or a peer is elected Raft leader
  - Metadata: replica_id, term
  - Subscribers: metrics, audit log

EventTermAdvanced:
  - Published when: The Raft term advances
  - Metadata: term
  - Subscribers: metrics

EventEntryCommitted / EventEntryApplied:
  - Published when: A log entry is committed / applied to the CRDT kernel
  - Message: command kind
  - Subscribers: metrics

EventSnapshotTaken:
  - Published when: Coordinator.CreateSnapshot completes
  - Subscribers: metrics, audit log

Cluster Events:

EventNodeJoined:
  - Published when: Coordinator.AddNode registers a new peer
  - Message: node id
  - Subscribers: metrics, audit log

EventNodeRemoved:
  - Published when: Coordinator.RemoveNode drops a peer
  - Message: node id
  - Subscribers: metrics, audit log

Blob Store Events:

EventBlobStored:
  - Published when: A new blob hash enters the GC root set
  - Message: hash
  - Subscribers: metrics

EventBlobGCRun:
  - Published when: A garbage-collection sweep completes
  - Subscribers: metrics

EventIntegrityFailed:
  - Published when: A blob fails its BLAKE3 checksum on retrieve
  - Metadata: hash, error
  - Subscribers: metrics, alerting

CRDT Kernel Events:

EventCRDTMerged:
  - Published when: A remote delta is merged into a CRDT slot
  - Metadata: slot kind
  - Subscribers: metrics

EventCRDTSynced:
  - Published when: An anti-entropy round with a peer completes
  - Metadata: peer
  - Subscribers: metrics

# Design Patterns

Non-Blocking Publish:
  - Publish sends to buffered channel
  - Returns immediately (no waiting)
  - Events may be dropped if buffer full
  - Trade-off: Throughput over guaranteed delivery

Fan-Out Pattern:
  - Single event broadcast to all subscribers
  - Each subscriber gets own channel
  - Independent processing rates
  - Full buffers skip to prevent blocking

Fire-and-Forget:
  - No acknowledgment from subscribers
  - No retry on delivery failure
  - Simplifies broker implementation
  - Suitable for monitoring, not critical operations

Graceful Shutdown:
  - broker.Stop() signals broadcast loop
  - Events still queued in the event channel are not delivered
  - Subscriber channels remain open
  - Explicit Unsubscribe to close channels

# Performance Characteristics

Event Publishing:
  - Latency: < 1µs (channel send)
  - Throughput: ~10M events per second
  - Bottleneck: Subscriber processing speed
  - Non-blocking: Never waits for subscribers

Event Delivery:
  - Per subscriber: ~500ns to 1µs
  - Concurrent: All subscribers updated in parallel
  - Buffer: 50 events per subscriber
  - Overflow: Slow subscribers skip events

Memory Usage:
  - Broker: ~1KB baseline
  - Per subscriber: ~400 bytes (channel overhead)
  - Per event: ~200 bytes (struct + metadata)
  - Total: ~10KB for typical usage (10 subscribers)

Subscriber Count:
  - Recommended: < 100 subscribers
  - Impact: Linear with subscriber count
  - Optimization: Filter events at subscriber side

# Troubleshooting

Common Issues:

Events Not Received:
  - Symptom: Subscriber receives no events
  - Check: broker.Start() called
  - Check: Event type matches subscriber filter
  - Check: Subscriber goroutine running
  - Solution: Verify broker started and subscriber loop active

Slow Event Processing:
  - Symptom: High memory usage, event buffer full
  - Cause: Subscriber processing too slow
  - Check: Subscriber goroutine blocked
  - Solution: Process events asynchronously, increase buffer

Events Dropped:
  - Symptom: Missing events in subscriber
  - Cause: Subscriber buffer full (slow processing)
  - Check: SubscriberCount() and event rate
  - Solution: Increase buffer size or process faster

Memory Leak:
  - Symptom: Increasing memory usage over time
  - Cause: Subscribers not unsubscribed
  - Check: SubscriberCount() grows
  - Solution: Always defer broker.Unsubscribe(sub)

# Monitoring

The broker exports no Prometheus metrics of its own; SubscriberCount()
reports the number of current subscribers.

# Use Cases

Metrics Collection:
  - Metrics subscriber counts events
  - Updates Prometheus counters
  - Low-overhead monitoring
  - Alternative to direct instrumentation

Audit Logging:
  - Audit subscriber writes events to log
  - Tracks all cluster modifications
  - Compliance and troubleshooting
  - Persistent record of changes

Webhook Notifications (Future):
  - Webhook subscriber forwards events
  - Sends HTTP POST to external services
  - Integration with Slack, PagerDuty, etc.
  - Alerting and notification system

# Limitations

Current Limitations:
  - In-memory only (no persistence)
  - No event replay or history
  - No guaranteed delivery (best effort)
  - No topic-based filtering (all events broadcast)
  - No priority or ordering guarantees

Workarounds:
  - Persistence: Subscribe and write to database
  - History: Store events in separate event store
  - Guaranteed delivery: Use separate message queue
  - Filtering: Filter at subscriber side by event type

Future Enhancements:
  - Topic-based subscriptions
  - Event persistence (append-only log)
  - Event replay from specific timestamp
  - Delivery acknowledgments
  - Event schema validation

# Best Practices

Do:
  - Always defer broker.Unsubscribe(sub)
  - Process events asynchronously in goroutine
  - Filter events by type at subscriber
  - Include relevant metadata in events
  - Start broker before publishing events

Don't:
  - Block in subscriber event loop
  - Process events synchronously (blocking)
  - Publish events before broker.Start()
  - Forget to unsubscribe (causes leaks)
  - Rely on event delivery for critical operations

# See Also

  - pkg/coordinator, the only publisher of events in this module
  - Event sourcing: https://martinfowler.com/eaaDev/EventSourcing.html
  - Pub/sub pattern: https://en.wikipedia.org/wiki/Publish%E2%80%93subscribe_pattern
*/
package events
