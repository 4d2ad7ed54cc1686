// Package config loads hive-fleet configuration from YAML files.
//
// Configuration supports environment variable expansion using ${VAR_NAME}
// syntax, which is useful for keeping credentials out of config files:
//
//	database:
//	  driver: sqlite
//	  path: /var/lib/hive-fleet/fleet.db
//	fleet:
//	  poll_interval: 10s
//	  shutdown_timeout: 30s
//	  max_bots: 50
//	  max_message_length: 2000
//	providers:
//	  openai_api_key: ${OPENAI_API_KEY}
//	  anthropic_api_key: ${ANTHROPIC_API_KEY}
//	memory:
//	  backend: memory
//	logging:
//	  level: info
//	  format: text
//
// Duration fields accept Go duration strings ("10s", "1m30s"). Missing
// fields fall back to package defaults; Validate rejects out-of-range
// values such as a poll interval under one second.
package config
