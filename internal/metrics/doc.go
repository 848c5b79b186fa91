// Package metrics exposes Prometheus collectors for the chat pipeline.
//
// Create one Metrics per process and hand it to the components that record:
//
//	m := metrics.New(prometheus.NewRegistry())
//	mux.Handle("/metrics", m.Handler())
//
// Components accept a nil *Metrics when metrics are disabled.
package metrics
