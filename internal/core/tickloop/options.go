// SPDX-License-Identifier: MPL-2.0

package tickloop

import "github.com/charmbracelet/log"

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *log.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithImmediateFirstStep runs the first step right after Start instead of
// waiting one interval.
func WithImmediateFirstStep() Option {
	return func(lp *Loop) {
		lp.immediate = true
	}
}
