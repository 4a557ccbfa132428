package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracedbg_rpc_call_duration_seconds",
		Help:    "Duration of RPC calls to the execution node",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"node", "method", "status"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracedbg_rpc_calls_total",
		Help: "Total RPC calls made to the execution node",
	}, []string{"node", "method", "status"})

	ChainScanBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracedbg_chain_scan_blocks_total",
		Help: "Total blocks inspected during the deployment history scan",
	}, []string{"node"})

	ChainScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracedbg_chain_scan_duration_seconds",
		Help:    "Time taken to scan the chain for contract deployments",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"node"})

	TraceStepsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracedbg_trace_steps_decoded_total",
		Help: "Total trace steps decoded and source-annotated",
	}, []string{"contract"})

	DebugCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracedbg_debug_commands_total",
		Help: "Total debugger protocol commands handled",
	}, []string{"command", "status"})
)
