// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for packfetch.
//
// The root command loads configuration once in PersistentPreRunE. Commands
// that talk to a superpack build an engine: an HTTP downloader, a virtual
// file system and a pack manager driven by a tick loop goroutine.
package cmd
