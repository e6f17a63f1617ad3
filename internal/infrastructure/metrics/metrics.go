package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks registrar operations by outcome
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "namereg_operations_total",
		Help: "Total number of registrar operations processed",
	}, []string{"op", "outcome"})

	// ValueMoved tracks value crossing the custody boundary
	ValueMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "namereg_value_moved_total",
		Help: "Total value collected into and released from registry custody",
	}, []string{"direction"})

	// ReentrancyRejections counts mutating calls rejected by the busy guard
	ReentrancyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "namereg_reentrancy_rejections_total",
		Help: "Total number of nested mutating calls rejected outright",
	})

	// EscrowOutstanding tracks the sum of outstanding bid escrow
	EscrowOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "namereg_escrow_outstanding",
		Help: "Current total value held in escrow for outstanding bids",
	})

	// CacheOperations tracks L1/L2 cache hits and misses on the resolve path
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "namereg_cache_operations_total",
		Help: "Total number of cache hits and misses",
	}, []string{"level", "result"})

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "namereg_db_connections_active",
		Help: "Number of active database connections",
	})

	// RateLimited counts requests rejected by the per-client token bucket
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "namereg_rate_limited_total",
		Help: "Total number of HTTP requests rejected by rate limiting",
	})

	// BGPAnnounced indicates if the node is currently announcing routes via BGP
	BGPAnnounced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "namereg_bgp_announced",
		Help: "Binary indicator of BGP announcement status (1 = announcing, 0 = withdrawn)",
	})
)
