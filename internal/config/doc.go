// Package config loads, normalizes, and validates meico configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEICO_JAR and MEICO_API_TOKEN. The Config type centralizes every knob the
// CLI and the conversion service need: where scratch areas live, how the
// engine is launched, which soundbanks the service may hand out, and the
// request defaults shared by both surfaces.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
