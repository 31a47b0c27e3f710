// Configuration files are YAML or JSON:
//
//	name: faros
//	default_source: pagerduty
//	buffer:
//	  max_records: 500
//	flush:
//	  timeout: 15s
//	  retry_attempts: 3
//	sink:
//	  type: postgres
//	  settings:
//	    dsn: ${PG_DSN}
//	converters:
//	  pagerduty:
//	    application_mapping: '{"web":{"name":"frontend","platform":"k8s"}}'
//
// Every scalar key can be overridden from the environment with the
// GRAPHSINK_ prefix and dots replaced by underscores, for example
// GRAPHSINK_FLUSH_RETRY_ATTEMPTS=10.
package config
