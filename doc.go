// Package zoneagent is a framework for agents that exchange business objects
// with other agents over named pub/sub domains called zones.
//
// An agent is configured with a list of zones and a set of entities. A
// publisher owns the data of one object type: it periodically broadcasts the
// changes its source reports to every zone and answers queries for that type.
// A subscriber consumes one object type: it receives events, periodically
// queries every zone for a full sync, and hands everything it receives to its
// handler on a pool of consumer goroutines fed by a bounded queue.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          Orchestrator (agent)       │  Zone connect (all or nothing)
//	│   (start, schedule, stop, health)   │  Ordered graceful stop
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌──────────────────┐  ┌──────────────────┐
//	│    Publishers    │  │   Subscribers    │  Tick on a scheduler,
//	│ broadcast/answer │  │ queue → consumers│  isolated or shared
//	└──────────────────┘  └──────────────────┘
//	           ↓ talk to zones via
//	┌─────────────────────────────────────┐
//	│           Transport                 │  NATS per zone, or the
//	│   (events, queries, results)        │  in-process loopback
//	└─────────────────────────────────────┘
//
// On NATS every zone has its own connection and objects travel on:
//
//	zone.<zone>.event.<type>               events
//	zone.<zone>.request.<type>             queries (request/reply)
//	zone.<zone>.results.<type>.<agent>     query results
//
// # Packages
//
// Runtime:
//   - agent: Orchestrator lifecycle, scheduling and health
//   - publisher: Publisher runtime and the Source interface
//   - subscriber: Subscriber runtime and the Handler interface
//   - scheduler: Isolated and shared periodic scheduling
//   - entity: Context shared by every entity of an agent
//
// Data:
//   - message: Objects, events, queries and inbound records
//   - mapping: Mapping profiles and resolution
//   - types: Zones and message envelopes
//
// Infrastructure:
//   - config: YAML configuration loading and validation
//   - registry, componentregistry: Factories and the built-in entities
//   - transport, natsclient: Zone transports
//   - pkg/queue, pkg/worker, pkg/retry: Queue, consumer pool, backoff
//   - metric, health, errors: Metrics, health aggregation, error taxonomy
//
// # Usage Patterns
//
// Custom Publisher Source:
//
//	func RegisterStudents(r *registry.Registry) error {
//	    return r.RegisterPublisher("students", "Student records from the SIS",
//	        func(cfg config.PublisherConfig, deps registry.Dependencies) (publisher.Source, error) {
//	            return newStudentSource(cfg, deps.Logger)
//	        })
//	}
//
// Running an agent:
//
//	pubs, subs, err := reg.Build(agentCfg, logger)
//	o, err := agent.New(ectx)
//	err = o.Run(ctx, pubs, subs) // returns after ctx ends and Stop completes
//
// # Binary
//
//	# Run StudentAgent from SIFAgent.yaml
//	./bin/zoneagent StudentAgent
//
//	# Validate a configuration without connecting
//	./bin/zoneagent StudentAgent agents.yaml --validate
package zoneagent
