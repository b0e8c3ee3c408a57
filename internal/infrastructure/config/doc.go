// Package config loads and validates iotpro configuration.
//
// Configuration comes from a YAML file with environment variable
// overrides (IOTPRO_* pattern). Defaults are applied first, then file
// values, then environment values. Load fails fast on invalid or
// insecure settings (e.g. a missing or short session signing secret).
package config
