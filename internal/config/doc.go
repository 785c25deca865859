// Package config loads, normalizes, and validates rawlabel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// RAWLABEL_DATA_ROOT and the S3 credentials. The Config type centralizes every
// knob the server and CLI need so the RAW source root, the derived asset cache
// and the annotation database are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical backend names, and clear validation errors.
package config
