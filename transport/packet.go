package transport

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/message"
	"github.com/c360/zoneagent/types"
)

// eventPacket carries one or more events of the same action
type eventPacket struct {
	Info    types.MessageInfo `json:"info"`
	Action  message.Action    `json:"action"`
	Objects []message.Object  `json:"objects"`
}

type requestPacket struct {
	Info  types.MessageInfo `json:"info"`
	Query *message.Query    `json:"query"`
}

type resultsPacket struct {
	Info    types.MessageInfo  `json:"info"`
	QueryID string             `json:"query_id,omitempty"`
	Objects []message.Object   `json:"objects,omitempty"`
	Error   *message.ZoneError `json:"error,omitempty"`
	Final   bool               `json:"final"`
}

func newInfo(agentID, zoneID, version string) types.MessageInfo {
	return types.MessageInfo{
		MessageID:   message.NewMessage().ID,
		SourceAgent: agentID,
		SourceZone:  zoneID,
		Version:     version,
		Timestamp:   time.Now().UTC(),
	}
}

func decode(data []byte, v any, method string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.WrapInvalid(errors.ErrParsingFailed, "Transport", method, "decode packet: "+err.Error())
	}
	return nil
}

var subjectReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

func token(s string) string {
	return subjectReplacer.Replace(s)
}

// EventSubject is the subject events of objectType are published on in zone
func EventSubject(zoneID, objectType string) string {
	return "zone." + token(zoneID) + ".event." + token(objectType)
}

// RequestSubject is the subject queries for objectType are sent to in zone
func RequestSubject(zoneID, objectType string) string {
	return "zone." + token(zoneID) + ".request." + token(objectType)
}

// ResultsSubject is the subject agentID receives query results on
func ResultsSubject(zoneID, objectType, agentID string) string {
	return "zone." + token(zoneID) + ".results." + token(objectType) + "." + token(agentID)
}
