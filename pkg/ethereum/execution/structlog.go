package execution

// TraceTransaction is the result of debug_traceTransaction for one transaction.
type TraceTransaction struct {
	Gas         uint64  `json:"gas"`
	Failed      bool    `json:"failed"`
	ReturnValue *string `json:"returnValue"`

	StructLogs []StructLog `json:"structLogs"`
}

// StructLog is one executed instruction in the trace. Stack, memory and
// storage snapshots are kept in their raw hex form; consumers decode the
// words they need.
type StructLog struct {
	PC      uint64            `json:"pc"`
	Op      string            `json:"op"`
	Gas     uint64            `json:"gas"`
	GasCost uint64            `json:"gasCost"`
	Depth   int               `json:"depth"`
	Error   *string           `json:"error,omitempty"`
	Stack   []string          `json:"stack"`
	Memory  []string          `json:"memory"`
	Storage map[string]string `json:"storage"`
}

// TraceOptions configures debug_traceTransaction parameters. The debugger
// needs the full per-step stack; memory and storage are included so value
// snapshots survive in the decoded steps.
type TraceOptions struct {
	DisableStorage   bool
	DisableStack     bool
	DisableMemory    bool
	EnableReturnData bool
}

// DebuggerTraceOptions returns options with stack, memory and storage enabled.
func DebuggerTraceOptions() TraceOptions {
	return TraceOptions{
		DisableStorage:   false,
		DisableStack:     false,
		DisableMemory:    false,
		EnableReturnData: true,
	}
}
