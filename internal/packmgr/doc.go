// SPDX-License-Identifier: MPL-2.0

// Package packmgr acquires packs from a remote superpack on demand.
//
// A [Manager] is driven by repeated calls to [Manager.Update] from a single
// goroutine. Until the catalog is ready each call performs one init step:
// fetch the superpack footer, fetch and verify the file table, reconcile
// local files and mount packs that are already complete. Afterwards each
// call advances the highest priority [PackRequest] by one step.
//
// A request covers the requested pack and its transitive dependencies. Each
// file moves through Wait, CheckLocalFile, LoadingPackFile and CheckHash to
// Ready. A pack is mounted once all of its files are Ready and all of its
// dependencies are mounted, so a mounted pack never has an unmounted
// dependency.
//
// Consecutive local I/O failures trip a breaker that disables requesting and
// reports the failing path through [Observer.FileErrorOccurred].
package packmgr
