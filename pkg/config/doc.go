// Package config loads the sitegate server configuration from a YAML file, an
// optional .env file and environment variable overrides.
package config
