/*
Package config loads, overrides and validates cloudkit configuration.

Configuration is read from YAML, then CLOUDKIT_* environment variables override
individual keys, then Validate checks every section:

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("cloudkit.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

Example file:

	global:
	  log_level: INFO
	  log_format: json
	cache:
	  max_entries: 100
	  transfer_manager_max_entries: 50
	  ttl: 1h
	aws:
	  endpoint: http://localhost:4566
	  force_path_style: true
	  max_retries: 3
	queue:
	  wait_time: 20s
	  visibility_timeout: 60s
	  guaranteed_order: true
	storage:
	  background_write: false
	  part_size: 8MB
	  concurrency: 5
	metrics:
	  enabled: true
	  namespace: cloudkit

Validation failures carry the INVALID_CONFIG code and wrap an INVALID_ARGUMENT
error naming the offending key. Malformed environment values fail LoadFromEnv with
CONFIG_LOAD and leave the field untouched.
*/
package config
