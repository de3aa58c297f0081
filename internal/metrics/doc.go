/*
Package metrics provides Prometheus-based instrumentation for the
gateway's HTTP, upstream-dispatch, quota, cache, and database layers.

# Overview

Collector registers and records every Prometheus metric through promauto,
so there is no manual Registry bookkeeping. Metrics are namespaced and
carry label dimensions (method/path/status, provider/model, cache_type,
database/operation) suited to Grafana dashboards and alerting.

# Core types

  - Collector: holds the Counter/Histogram/Gauge vectors, grouped by
    the domain they instrument.

# Capabilities

  - HTTP metrics: request count, request duration, request/response
    body size, grouped by method/path/status with status codes bucketed
    into 2xx/3xx/4xx/5xx.
  - Upstream metrics: request count, request duration, token usage
    (prompt/completion), and cost, grouped by provider/model.
  - Dispatch metrics: quota rejections and failover-attempt counts.
  - Streaming metrics: SSE termination reasons.
  - Cache metrics: hit/miss counts, grouped by cache_type.
  - Database metrics: open/idle connection gauges and query-duration
    histogram, grouped by database/operation.
*/
package metrics
