// ABOUTME: Configuration loading package
// ABOUTME: Default values overlaid by an optional YAML file, overlaid by CLI flags
// Package config resolves the core's tunables (spec.md section 6) from
// three layers, in increasing priority: hardcoded defaults, an
// optional YAML file named by --config, and whichever command-line
// flags the caller actually passed.
package config
