/*
Package config manages the gateway's configuration lifecycle: multi-source
loading, runtime hot-reload, change auditing, and an HTTP management API.
Config is merged in "defaults -> YAML file -> environment variables"
priority order.

# Core types

  - Config: the top-level aggregate covering Server, Admin, Redis,
    Database, Log, and Telemetry.
  - Loader: a builder-style loader chaining file path, environment
    variable prefix, and custom validators.
  - HotReloadManager: watches the config file, applies field-level
    updates, runs change callbacks, and keeps a change log. It does not
    roll back or version configurations.
  - FileWatcher: a poll-plus-debounce file-change watcher that triggers
    reloads.
  - ConfigAPIHandler: an HTTP handler exposing config inspection,
    update, manual-reload, and change-history endpoints.

# Capabilities

  - Multi-source loading: YAML file, environment variables (GATEWAY_
    prefix by default), and built-in defaults.
  - Hot reload: automatic reload on file change plus manual API trigger,
    both supporting field-level updates.
  - Safe exposure: sensitive fields are replaced with "[REDACTED]" in
    API output (SanitizedConfig), the management API key is read from
    the X-API-Key header or the api_key query parameter, and CORS answers only a configured origin.
  - Change auditing: a change log that keeps the most recent 1000
    entries; there is no version tracking and no rollback.
  - Validation: built-in structural checks plus custom validators added
    with Loader.WithValidator.

# Example

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("GATEWAY").
		Load()
*/
package config
