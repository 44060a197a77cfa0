package types

import "time"

// MessageInfo describes the envelope of a message received from a zone: who
// sent it, in which zone, and which payload version it carries. Mapping
// selection may depend on any of these.
type MessageInfo struct {
	MessageID   string    `json:"message_id"`
	SourceAgent string    `json:"source_agent,omitempty"`
	SourceZone  string    `json:"source_zone,omitempty"`
	Version     string    `json:"version,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsZero reports whether no envelope information is present
func (mi *MessageInfo) IsZero() bool {
	return mi == nil || (mi.MessageID == "" && mi.SourceAgent == "" && mi.SourceZone == "" && mi.Version == "")
}
