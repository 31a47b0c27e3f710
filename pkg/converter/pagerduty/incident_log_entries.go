package pagerduty

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
)

// IncidentLogEntriesConverter maps log entries to ims_IncidentEvent.
type IncidentLogEntriesConverter struct {
	converter.Base
}

func (c *IncidentLogEntriesConverter) Convert(_ context.Context, record *protocol.Record, _ *converter.StreamContext) ([]converter.DestinationRecord, error) {
	data := record.Data
	id, err := requireID(data, "log entry")
	if err != nil {
		return nil, err
	}
	incident := obj(data, "incident")
	if incident == nil || str(incident, "id") == "" {
		return nil, fmt.Errorf("log entry %s has no incident", id)
	}

	return []converter.DestinationRecord{
		converter.NewRecord(ModelEvent, idKey(id), converter.Fields{
			"type":      eventType(str(data, "type")),
			"incident":  converter.Ref(idKey(str(incident, "id"))),
			"createdAt": timestamp(data, "created_at"),
			"detail":    str(data, "summary"),
		}),
	}, nil
}

func eventType(logType string) converter.Fields {
	switch logType {
	case "trigger_log_entry":
		return category("Created", logType)
	case "acknowledge_log_entry":
		return category("Acknowledged", logType)
	case "resolve_log_entry":
		return category("Resolved", logType)
	default:
		return category("Custom", logType)
	}
}
