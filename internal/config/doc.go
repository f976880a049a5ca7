// Package config loads application settings from environment variables
// (prefix TODO_) and an optional config.yaml, applies defaults, and
// validates the result before anything else starts.
package config
