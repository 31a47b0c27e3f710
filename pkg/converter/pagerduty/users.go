package pagerduty

import (
	"context"

	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
)

// UsersConverter maps users to ims_User.
type UsersConverter struct {
	converter.Base
}

func (c *UsersConverter) Convert(_ context.Context, record *protocol.Record, _ *converter.StreamContext) ([]converter.DestinationRecord, error) {
	id, err := requireID(record.Data, "user")
	if err != nil {
		return nil, err
	}
	return []converter.DestinationRecord{
		converter.NewRecord(ModelUser, idKey(id), converter.Fields{
			"email": str(record.Data, "email"),
			"name":  str(record.Data, "name"),
		}),
	}, nil
}

// PrioritiesConverter maps priorities to ims_IncidentPriority.
type PrioritiesConverter struct {
	converter.Base
}

func (c *PrioritiesConverter) Convert(_ context.Context, record *protocol.Record, _ *converter.StreamContext) ([]converter.DestinationRecord, error) {
	id, err := requireID(record.Data, "priority")
	if err != nil {
		return nil, err
	}
	name := str(record.Data, "name")
	return []converter.DestinationRecord{
		converter.NewRecord(ModelPriority, idKey(id), converter.Fields{
			"name":        name,
			"description": str(record.Data, "description"),
			"priority":    incidentPriority(name),
		}),
	}, nil
}
