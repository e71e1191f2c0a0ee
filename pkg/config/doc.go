// Package config loads identity core configuration from environment
// variables. All keys use the FOLIO_ prefix.
package config
