// SPDX-License-Identifier: MPL-2.0

// Package config handles packfetch configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/packfetch/config.cue (XDG on Linux,
// ~/Library/Application Support/packfetch/config.cue on macOS,
// %APPDATA%\packfetch\config.cue on Windows), validated against the embedded
// config_schema.cue, and finally overridden by PACKFETCH_* environment
// variables (PACKFETCH_DOWNLOAD_RATE_LIMIT for download.rate_limit).
package config
