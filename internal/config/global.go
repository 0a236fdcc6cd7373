// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the platform config directory. Tests use it
// because os.UserHomeDir() ignores HOME on some platforms.
var configDirOverride string

// Reset clears test overrides.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride sets a custom config directory path.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
