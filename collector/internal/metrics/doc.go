// Package metrics exports the outcome of each collector run as Prometheus
// gauges written to a node_exporter textfile.
package metrics
