package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/zoneagent/health"
	"github.com/c360/zoneagent/transport"
	"github.com/c360/zoneagent/types"
)

// Health aggregates zone and entity health
func (o *Orchestrator) Health() health.Status {
	o.mu.Lock()
	initialized, stopped, startedAt := o.initialized, o.stopped, o.startedAt
	publishers, subscribers := o.publishers, o.subscribers
	o.mu.Unlock()

	name := o.ectx.AgentID
	switch {
	case !initialized:
		return health.NewUnhealthy(name, "not started")
	case stopped:
		return health.NewUnhealthy(name, "stopped")
	}
	uptime := time.Since(startedAt)

	subMetrics := make(map[string]*health.Metrics, len(subscribers))
	for _, s := range subscribers {
		st := s.Stats()
		subMetrics[s.ID()] = &health.Metrics{Uptime: uptime, ErrorCount: st.Failed, MessagesProcessed: st.Processed}
	}

	cm, _ := o.ectx.Transport.(transport.ConnectionMonitor)
	zones := make(map[string]types.Zone, len(o.ectx.Zones))
	for _, z := range o.ectx.Zones {
		zones[zoneHealthName(z)] = z
	}

	var statuses []health.Status
	for _, n := range o.monitor.Names() {
		st, ok := o.monitor.Get(n)
		if !ok {
			continue
		}
		if z, ok := zones[n]; ok && cm != nil {
			if zs, ok := cm.ZoneState(z); ok {
				st = st.WithSubStatus(connectionStatus(zs))
			}
		}
		if m, ok := subMetrics[strings.TrimPrefix(n, "subscriber:")]; ok && strings.HasPrefix(n, "subscriber:") {
			st = st.WithMetrics(m)
		}
		statuses = append(statuses, st)
	}
	for _, p := range publishers {
		ps := p.Stats()
		statuses = append(statuses, health.NewHealthy("publisher:"+p.ID(), "scheduled").WithMetrics(&health.Metrics{
			Uptime:            uptime,
			ErrorCount:        ps.Failures,
			MessagesProcessed: ps.Events,
		}))
	}
	return health.Aggregate(name, statuses)
}

func connectionStatus(zs transport.ZoneState) health.Status {
	msg := zs.Status
	if zs.RTT > 0 {
		msg = fmt.Sprintf("%s, rtt %s", msg, zs.RTT)
	}
	st := health.NewHealthy("connection", msg)
	if !zs.Connected {
		st = health.NewUnhealthy("connection", msg)
	}
	if zs.Failures > 0 {
		st = st.WithMetrics(&health.Metrics{ErrorCount: int64(zs.Failures), LastActivity: zs.LastFailure})
	}
	return st
}
