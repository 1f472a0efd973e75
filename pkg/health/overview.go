package health

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/store"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

const (
	overviewCacheKey = "driftwatch:overview"
	overviewCacheTTL = 15 * time.Second
	recentLimit      = 5
)

// Overview computes the KPI bundle served by the health endpoints and
// the SSE stream. An optional redis client caches the bundle; when the
// client is nil or redis is down the bundle is computed directly.
type Overview struct {
	Store *store.Store
	Redis *redis.Client
}

// Bundle assembles the KPI payload. The key set is the dashboard
// contract; renaming any of them breaks the frontend poller.
func (o *Overview) Bundle(ctx context.Context) (map[string]interface{}, error) {
	if cached := o.fromCache(ctx); cached != nil {
		return cached, nil
	}

	devices, err := o.Store.ListDevices("", false)
	if err != nil {
		return nil, err
	}
	byDevice, err := o.Store.OpenIncidentsByDevice("")
	if err != nil {
		return nil, err
	}
	counts, err := o.Store.OpenIncidentCounts("")
	if err != nil {
		return nil, err
	}
	remediation, err := o.Store.RemediationCounts()
	if err != nil {
		return nil, err
	}
	recent, err := o.Store.RecentIncidents(recentLimit)
	if err != nil {
		return nil, err
	}

	total := len(devices)
	withIncident := 0
	warning := 0
	for _, d := range devices {
		summary, ok := byDevice[[2]string{d.CustomerID, d.DeviceID}]
		if !ok {
			continue
		}
		if summary.WorstRank >= schema.SeverityRank["HIGH"] {
			withIncident++
		} else {
			warning++
		}
	}
	healthy := total - withIncident - warning

	open := 0
	for _, n := range counts {
		open += n
	}

	bundle := map[string]interface{}{
		"devices": map[string]interface{}{
			"total":         total,
			"healthy":       healthy,
			"with_incident": withIncident,
			"warning":       warning,
		},
		"incidents": map[string]interface{}{
			"open":     open,
			"critical": counts["CRITICAL"],
			"high":     counts["HIGH"],
			"warning":  counts["WARNING"] + counts["MEDIUM"],
			"info":     counts["INFO"] + counts["LOW"],
		},
		"remediation": remediation,
		"slo": map[string]interface{}{
			"mtta_minutes": o.mttaMinutes(recent),
			"mttr_minutes": 0,
		},
		"recent_incidents": recentPayload(recent),
	}

	o.toCache(ctx, bundle)
	return bundle, nil
}

// mttaMinutes approximates mean time to acknowledge from the age of
// still-open recent incidents.
func (o *Overview) mttaMinutes(recent []schema.Incident) int {
	var totalMinutes, n int
	now := time.Now().UTC()
	for _, inc := range recent {
		if schema.NormalizeStatus(inc.Status) != "novo" {
			continue
		}
		totalMinutes += int(now.Sub(inc.Timestamp).Minutes())
		n++
	}
	if n == 0 {
		return 0
	}
	return totalMinutes / n
}

func recentPayload(incidents []schema.Incident) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, map[string]interface{}{
			"id":          inc.ID,
			"timestamp":   inc.Timestamp,
			"customer_id": inc.CustomerID,
			"device_id":   inc.DeviceID,
			"severity":    inc.Severity,
			"category":    inc.Category,
			"description": inc.Description,
			"status":      schema.NormalizeStatus(inc.Status),
		})
	}
	return out
}

func (o *Overview) fromCache(ctx context.Context) map[string]interface{} {
	if o.Redis == nil {
		return nil
	}
	data, err := o.Redis.Get(ctx, overviewCacheKey).Bytes()
	if err != nil {
		return nil
	}
	var bundle map[string]interface{}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil
	}
	return bundle
}

func (o *Overview) toCache(ctx context.Context, bundle map[string]interface{}) {
	if o.Redis == nil {
		return
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return
	}
	if err := o.Redis.Set(ctx, overviewCacheKey, data, overviewCacheTTL).Err(); err != nil {
		util.Debugf("overview cache write failed: %v", err)
	}
}
