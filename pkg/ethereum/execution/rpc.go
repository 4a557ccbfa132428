package execution

import (
	"context"
	"math/big"
	"time"

	"github.com/0xsequence/ethkit/ethrpc"
	"github.com/0xsequence/ethkit/go-ethereum/core/types"

	"github.com/ethpandaops/tracedbg/pkg/common"
	"github.com/ethpandaops/tracedbg/pkg/ethereum"
)

const (
	STATUS_ERROR   = "error"
	STATUS_SUCCESS = "success"
)

// Transaction is the raw eth_getTransactionByHash shape. The debugger only
// needs the call target and input; everything else stays in hex form.
type Transaction struct {
	Hash  string  `json:"hash"`
	To    *string `json:"to"`
	From  string  `json:"from"`
	Input string  `json:"input"`
	Value string  `json:"value"`
}

// TransactionReceipt is the raw eth_getTransactionReceipt shape.
type TransactionReceipt struct {
	TransactionHash string  `json:"transactionHash"`
	ContractAddress *string `json:"contractAddress"`
	Status          *string `json:"status"`
}

func (n *Node) recordRPCMetrics(method, status string, duration time.Duration) {
	common.RPCCallDuration.WithLabelValues(n.config.Name, method, status).Observe(duration.Seconds())
	common.RPCCallsTotal.WithLabelValues(n.config.Name, method, status).Inc()
}

func (n *Node) BlockNumber(ctx context.Context) (*uint64, error) {
	var blockNumber uint64

	start := time.Now()
	_, err := n.rpc.Do(ctx, ethrpc.BlockNumber().Into(&blockNumber))

	status := STATUS_SUCCESS
	if err != nil {
		status = STATUS_ERROR
	}

	n.recordRPCMetrics("eth_blockNumber", status, time.Since(start))

	if err != nil {
		return nil, err
	}

	return &blockNumber, nil
}

func (n *Node) BlockByNumber(ctx context.Context, blockNumber *big.Int) (*types.Block, error) {
	var block *types.Block

	start := time.Now()
	_, err := n.rpc.Do(ctx, ethrpc.BlockByNumber(blockNumber).Into(&block))

	status := STATUS_SUCCESS
	if err != nil {
		status = STATUS_ERROR
	}

	n.recordRPCMetrics("eth_getBlockByNumber", status, time.Since(start))

	if err != nil {
		return nil, err
	}

	return block, nil
}

func (n *Node) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var tx Transaction

	call := ethrpc.NewCallBuilder[Transaction]("eth_getTransactionByHash", nil, hash)

	start := time.Now()
	_, err := n.rpc.Do(ctx, call.Into(&tx))

	status := STATUS_SUCCESS
	if err != nil {
		status = STATUS_ERROR
	}

	n.recordRPCMetrics("eth_getTransactionByHash", status, time.Since(start))

	if err != nil {
		return nil, err
	}

	if tx.Hash == "" {
		return nil, ethereum.ErrTransactionNotFound
	}

	return &tx, nil
}

func (n *Node) GetTransactionReceipt(ctx context.Context, hash string) (*TransactionReceipt, error) {
	var receipt TransactionReceipt

	call := ethrpc.NewCallBuilder[TransactionReceipt]("eth_getTransactionReceipt", nil, hash)

	start := time.Now()
	_, err := n.rpc.Do(ctx, call.Into(&receipt))

	status := STATUS_SUCCESS
	if err != nil {
		status = STATUS_ERROR
	}

	n.recordRPCMetrics("eth_getTransactionReceipt", status, time.Since(start))

	if err != nil {
		return nil, err
	}

	return &receipt, nil
}

func getTraceParams(hash string, opts TraceOptions) []any {
	return []any{
		hash,
		map[string]any{
			"disableStorage":   opts.DisableStorage,
			"disableStack":     opts.DisableStack,
			"disableMemory":    opts.DisableMemory,
			"enableReturnData": opts.EnableReturnData,
		},
	}
}

// DebugTraceTransaction fetches the full per-instruction log for a
// transaction. This is the single expensive call of a debugging session; no
// timeout is imposed beyond the caller's context.
func (n *Node) DebugTraceTransaction(ctx context.Context, hash string, opts TraceOptions) (*TraceTransaction, error) {
	var rsp TraceTransaction

	call := ethrpc.NewCallBuilder[TraceTransaction]("debug_traceTransaction", nil, getTraceParams(hash, opts)...)

	start := time.Now()
	_, err := n.rpc.Do(ctx, call.Into(&rsp))

	status := STATUS_SUCCESS
	if err != nil {
		status = STATUS_ERROR
	}

	n.recordRPCMetrics("debug_traceTransaction", status, time.Since(start))

	if err != nil {
		return nil, err
	}

	if rsp.StructLogs == nil {
		return nil, ethereum.ErrTraceNotAvailable
	}

	return &rsp, nil
}
