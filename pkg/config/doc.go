// Package config loads and watches the linkcomfort configuration file
// (config.yaml), shared by the collector and reporter binaries.
//
// Top-level sections:
//   - facility - open_hour, close_hour, timezone (operating hours lens)
//   - measurement - command, args, command_timeout_sec, retry_count, retry_wait_sec
//   - storage - path, retention_days
//   - scoring - weights (percentages summing to 100) and per-metric bounds
//   - report - days, recent_hours, output_dir, granularity
//   - server - addr, stream interval and API key auth for `reporter serve`
//   - metrics - textfile path for collector metrics
//
// Load(path) reads the YAML file, applies defaults, then validates it. Any
// malformation is returned as a descriptive error and is fatal to callers.
//
// Resolve(path) additionally loads a .env file and honours LINKCOMFORT_CONFIG.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on change; it
// is used by `reporter serve` only.
package config
