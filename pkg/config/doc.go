// Package config loads component configuration structs from environment
// variables (and an optional .env file) using `env` struct tags. Parsed
// configs are cached per type so repeated loads are cheap and
// consistent across components.
package config
