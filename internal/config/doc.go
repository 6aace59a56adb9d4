// Package config loads, normalizes, and validates intake configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// INTAKE_CHAT_TOKEN. The Config type centralizes every knob the daemon and CLI
// need: the state and log directories, the spreadsheet source, chat
// credentials, per-track destinations and vote rules, and the reminder and
// digest schedule.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical track keys, and clear validation errors.
package config
