// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tillbook"

var (
    EntriesPosted = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "ledger_entries_posted_total",
            Help:      "Ledger entries posted, by transaction type",
        },
        []string{"type"},
    )
    EntriesRejected = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "ledger_entries_rejected_total",
            Help:      "Ledger entries rejected before persisting, by reason",
        },
        []string{"reason"},
    )
    RevisionConflicts = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "docstore_revision_conflicts_total",
            Help:      "Optimistic revision conflicts, by outcome (retried|exhausted)",
        },
        []string{"outcome"},
    )
    LotsAllocated = promauto.NewCounter(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "inventory_lots_allocated_total",
            Help:      "Lot allocations produced by FIFO consumption",
        },
    )
    EODCompleted = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "eod_completed_total",
            Help:      "Completed end-of-day records, by variance type",
        },
        []string{"variance"},
    )
    TradingBlocked = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "trading_day_checks_total",
            Help:      "Trading day gate decisions",
        },
        []string{"decision"},
    )

    HTTPRequests = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "http_requests_total",
            Help:      "HTTP requests, by method, route pattern and status",
        },
        []string{"method", "route", "status"},
    )
    HTTPDuration = promauto.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: namespace,
            Name:      "http_request_duration_seconds",
            Help:      "HTTP request latency, by method and route pattern",
            Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
        },
        []string{"method", "route"},
    )
    APIErrors = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "http_errors_total",
            Help:      "Error responses, by error code",
        },
        []string{"code"},
    )
)
