// Package config handles application configuration loading and validation.
//
// Configuration is loaded from config.yml and validated using struct tags.
// A .env file (or the environment) can override the config path and the
// listen port, which keeps container deployments free of baked-in files.
package config
