// Package pagerduty converts PagerDuty streams into incident management
// entities.
package pagerduty

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/json"
)

// Source is the registry source name of every converter in this package.
const Source = "pagerduty"

// sourceName is recorded on entities keyed by PagerDuty ids.
const sourceName = "PagerDuty"

// Models written by this package.
const (
	ModelApplication       = "compute_Application"
	ModelIncident          = "ims_Incident"
	ModelApplicationImpact = "ims_IncidentApplicationImpact"
	ModelAssignment        = "ims_IncidentAssignment"
	ModelEvent             = "ims_IncidentEvent"
	ModelPriority          = "ims_IncidentPriority"
	ModelUser              = "ims_User"
)

// Converters returns one converter per supported stream.
func Converters() []converter.Converter {
	return []converter.Converter{
		&IncidentsConverter{Base: converter.NewBase(Source, "incidents")},
		&IncidentLogEntriesConverter{Base: converter.NewBase(Source, "incident_log_entries")},
		&UsersConverter{Base: converter.NewBase(Source, "users")},
		&PrioritiesConverter{Base: converter.NewBase(Source, "priorities")},
	}
}

// category builds the {category, detail} pair used by status, type and
// priority attributes.
func category(cat, detail string) converter.Fields {
	return converter.Fields{"category": cat, "detail": detail}
}

func idKey(id string) converter.Fields {
	return converter.Fields{"uid": id, "source": sourceName}
}

func str(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func obj(data map[string]interface{}, key string) map[string]interface{} {
	m, _ := data[key].(map[string]interface{})
	return m
}

func list(data map[string]interface{}, key string) []map[string]interface{} {
	raw, _ := data[key].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// timestamp normalises an ISO 8601 value to RFC 3339 in UTC. Unparseable
// values are dropped.
func timestamp(data map[string]interface{}, key string) interface{} {
	s := str(data, key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func requireID(data map[string]interface{}, kind string) (string, error) {
	id := str(data, "id")
	if id == "" {
		return "", fmt.Errorf("%s has no id", kind)
	}
	return id, nil
}

// applicationRef describes the application a service maps to.
type applicationRef struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

// applicationMapping parses the "application_mapping" setting: a JSON
// object from service name to {name, platform}.
func applicationMapping(settings map[string]interface{}) map[string]applicationRef {
	out := map[string]applicationRef{}
	switch raw := settings["application_mapping"].(type) {
	case string:
		if strings.TrimSpace(raw) == "" {
			return out
		}
		_ = json.Unmarshal([]byte(raw), &out)
	case map[string]interface{}:
		for service, v := range raw {
			m, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			out[service] = applicationRef{Name: str(m, "name"), Platform: str(m, "platform")}
		}
	}
	return out
}

func applicationKey(service map[string]interface{}, mapping map[string]applicationRef) converter.Fields {
	name := str(service, "summary")
	if app, ok := mapping[name]; ok && app.Name != "" {
		return converter.Fields{"name": app.Name, "platform": app.Platform}
	}
	return converter.Fields{"name": name, "platform": ""}
}
