// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads gemtalk configuration.
//
// Settings come from a TOML file with built-in defaults filled in for
// anything left unset, then environment overrides on top.
//
// # Configuration Precedence
//
// Highest first:
//   - Environment variables (GEMTALK_*, then GEMINI_API_KEY / OPENROUTER_API_KEY for the key)
//   - .env in the working directory or the config directory
//   - $XDG_CONFIG_HOME/gemtalk/config.toml, or ~/.gemtalk/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	if err := cfg.RequireAPIKey(); err != nil {
//	    return err
//	}
//
// Watch re-reads the file on change so settings such as the typewriter delay
// can take effect without a restart.
package config
