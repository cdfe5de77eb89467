/*
Package config loads event bus settings from YAML, JSON or JSONC files.

# Overview

Config wraps a parsed document and provides typed accessors. A missing
key yields the default; a value of the wrong type, an unparsable duration
or an unknown key is an ErrInvalidSettings error naming the dotted key
path. Settings is the typed view a bus is built from.

# Loading Settings

	settings, err := config.LoadSettings("bus.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	bus, err := eventbus.FromSettings(settings)

Keys:
  - identifier: bus name used in logs and failure records
  - sweep_interval: how often bindings of collected subscribers are purged (0 disables)
  - workers.size, workers.idle_timeout: background pool bounds (0 uses defaults)
  - failures.driver: none, memory or sqlite
  - failures.path: SQLite database file
  - failures.capacity: ring size for the memory driver
  - metrics, tracing: enable OpenTelemetry instrumentation

Durations accept "30s"-style strings or numbers of seconds.

# File Formats

FromFile picks the parser by extension: .yaml and .yml use gopkg.in/yaml.v3,
.json uses encoding/json, and .jsonc strips comments and trailing commas
with github.com/tidwall/jsonc before parsing as JSON.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
