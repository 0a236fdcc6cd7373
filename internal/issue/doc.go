// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and Markdown guidance cards for
// the failures packfetch users can fix themselves: an unreachable or corrupt
// superpack, a missing pack, a full disk, or a broken config file.
package issue
