// Package natsclient wraps one nats.go connection per zone.
//
// A Client adds what the zone transport needs on top of the raw connection:
//
//   - a circuit breaker that fails Connect fast after repeated failures
//     and lets attempts through again once an exponential backoff elapses
//   - status tracking driven by the nats.go disconnect and reconnect handlers
//   - per-message handler contexts with an upper time bound
//   - drain on Close, bounded by the caller's context
//
// Usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithZone("Zone1"),
//	    natsclient.WithLogger(logger),
//	)
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Close(context.Background())
//
// Tests that need a real server use NewTestClient, which runs NATS in a
// container through testcontainers.
package natsclient
