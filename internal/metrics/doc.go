// Package metrics provides build metrics for apitree.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics cost nothing unless enabled:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	orchestrator := build.New(cfg, build.WithRecorder(recorder))
//
// The CLI enables the Prometheus recorder when --metrics-file is given and
// writes the registry in the node-exporter textfile format after the build.
package metrics
