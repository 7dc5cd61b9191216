// Package build runs the apitree pipeline: scanning, filtering, tree building,
// name resolution, link resolution, rendering and link verification.
//
// Every execution path (build, watch, scan) goes through Service. Stages run
// strictly in order on one goroutine except rendering, which fans pages out
// to a worker pool. Fatal problems abort the run with a *StageError; non-fatal
// ones accumulate as issues in the Report, which is persisted next to the
// pages together with the manifest.
package build
