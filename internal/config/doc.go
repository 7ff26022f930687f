// Package config loads and validates the chat-relay YAML configuration.
//
// Values in the form ${VAR_NAME} are expanded from the environment before
// parsing, so secrets can stay out of the file on disk. Optional fields fall
// back to defaults after parsing.
package config
