// Package message defines what flows between agents and zones.
//
// Publishers produce Event values (an Object plus an Action) and answer Query
// values with Objects. Subscribers receive the same shapes from a zone; each
// received record is wrapped in an Inbound that remembers its zone, its
// resolved mapping and, for events, its action. Inbound is what a subscriber
// queues and its consumers process.
//
// Every Inbound embeds Message, which gives it a UUID, a creation time and a
// retry counter.
package message
