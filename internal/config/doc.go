// Package config provides centralized configuration management for the
// AxiomHive runtime. Settings are loaded from a JSON file, filled with
// sensible defaults and finally overridden by AXIOMHIVE_* environment
// variables.
package config
