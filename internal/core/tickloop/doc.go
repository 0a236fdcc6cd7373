// SPDX-License-Identifier: MPL-2.0

// Package tickloop drives a single-threaded step function at a fixed
// interval on its own goroutine.
//
// The pack manager is not safe for concurrent use, so every call into it
// happens inside the step function, on the loop goroutine. Callers read the
// manager again only after Wait or Stop returned.
package tickloop
