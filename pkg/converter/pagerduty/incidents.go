package pagerduty

import (
	"context"
	"strings"

	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
)

// IncidentsConverter maps incidents to ims_Incident plus the application
// impact and assignment edges. The service's application is emitted once
// per run.
type IncidentsConverter struct {
	converter.Base
}

func (c *IncidentsConverter) Convert(_ context.Context, record *protocol.Record, sc *converter.StreamContext) ([]converter.DestinationRecord, error) {
	data := record.Data
	id, err := requireID(data, "incident")
	if err != nil {
		return nil, err
	}

	incidentKey := idKey(id)
	status := str(data, "status")

	var acknowledgedAt interface{}
	if acks := list(data, "acknowledgements"); len(acks) > 0 {
		acknowledgedAt = timestamp(acks[0], "at")
	}
	var resolvedAt interface{}
	if status == "resolved" {
		resolvedAt = timestamp(data, "last_status_change_at")
	}

	attrs := converter.Fields{
		"title":          str(data, "title"),
		"description":    str(data, "description"),
		"url":            str(data, "html_url"),
		"createdAt":      timestamp(data, "created_at"),
		"updatedAt":      timestamp(data, "last_status_change_at"),
		"acknowledgedAt": acknowledgedAt,
		"resolvedAt":     resolvedAt,
		"status":         incidentStatus(status),
		"severity":       incidentSeverity(str(data, "urgency"), sc.Setting("default_severity", "")),
	}
	if p := obj(data, "priority"); p != nil {
		attrs["priority"] = incidentPriority(str(p, "summary"))
	}

	out := []converter.DestinationRecord{converter.NewRecord(ModelIncident, incidentKey, attrs)}

	if service := obj(data, "service"); service != nil && str(service, "summary") != "" {
		appKey := applicationKey(service, applicationMapping(sc.Settings))
		app := converter.NewRecord(ModelApplication, appKey, nil)
		if !sc.Seen(ModelApplication, app.Key) {
			out = append(out, app)
		}
		out = append(out, converter.NewRecord(ModelApplicationImpact, converter.Fields{
			"incident":    converter.Ref(incidentKey),
			"application": converter.Ref(appKey),
		}, nil))
	}

	for _, assignment := range list(data, "assignments") {
		assignee := obj(assignment, "assignee")
		if assignee == nil || str(assignee, "id") == "" {
			continue
		}
		out = append(out, converter.NewRecord(ModelAssignment, converter.Fields{
			"incident": converter.Ref(incidentKey),
			"assignee": idKey(str(assignee, "id")),
		}, converter.Fields{
			"assignedAt": timestamp(assignment, "at"),
		}))
	}

	return out, nil
}

func incidentStatus(status string) converter.Fields {
	switch status {
	case "triggered":
		return category("Created", status)
	case "acknowledged":
		return category("Investigating", status)
	case "resolved":
		return category("Resolved", status)
	default:
		return category("Custom", status)
	}
}

// incidentSeverity maps PagerDuty urgency; low urgency falls back to the
// configured default when set.
func incidentSeverity(urgency, def string) converter.Fields {
	switch urgency {
	case "high":
		return category("Sev1", urgency)
	case "low":
		if def != "" {
			return category(def, urgency)
		}
		return category("Sev4", urgency)
	default:
		return category("Custom", urgency)
	}
}

func incidentPriority(summary string) converter.Fields {
	switch strings.ToUpper(summary) {
	case "P1":
		return category("Critical", summary)
	case "P2":
		return category("High", summary)
	case "P3":
		return category("Medium", summary)
	case "P4", "P5":
		return category("Low", summary)
	default:
		return category("Custom", summary)
	}
}
