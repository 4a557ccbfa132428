package trace

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/ethereum/execution"
)

const (
	addrA = "0x2000000000000000000000000000000000000001"
	addrB = "0x2000000000000000000000000000000000000002"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

type fakeSource struct {
	tx   *execution.Transaction
	logs []execution.StructLog
}

func (s *fakeSource) TransactionByHash(_ context.Context, hash string) (*execution.Transaction, error) {
	if s.tx == nil || s.tx.Hash != hash {
		return nil, fmt.Errorf("transaction %s not found", hash)
	}

	return s.tx, nil
}

func (s *fakeSource) DebugTraceTransaction(_ context.Context, _ string, _ execution.TraceOptions) (*execution.TraceTransaction, error) {
	return &execution.TraceTransaction{StructLogs: s.logs}, nil
}

func testArtifacts(t *testing.T) *artifact.List {
	t.Helper()

	artifacts := artifact.NewList()

	require.NoError(t, artifacts.Add(&artifact.Artifact{
		UnitName:      "A.sol",
		ContractName:  "A",
		Source:        "contract A {}\n",
		SourceList:    []string{"A.sol"},
		BinRuntime:    "000000",
		SrcmapRuntime: "0:5:0;2:3:0;5:1:0",
	}))

	require.NoError(t, artifacts.Add(&artifact.Artifact{
		UnitName:      "B.sol",
		ContractName:  "B",
		Source:        "contract B {}\n",
		SourceList:    []string{"B.sol"},
		BinRuntime:    "0000",
		SrcmapRuntime: "0:4:0;4:2:0",
	}))

	return artifacts
}

func newTestDecoder(t *testing.T, tx *execution.Transaction, logs []execution.StructLog) *Decoder {
	t.Helper()

	artifacts := testArtifacts(t)

	identifier := NewContractIdentifier(testLogger())
	identifier.Register(addrA, ContractID{UnitName: "A.sol", ContractName: "A"})
	identifier.Register(addrB, ContractID{UnitName: "B.sol", ContractName: "B"})

	return NewDecoder(testLogger(), &fakeSource{tx: tx, logs: logs}, artifacts, identifier)
}

func collectSteps(t *testing.T, it *Iterator) ([]*TraceStep, []CallStackEvent) {
	t.Helper()

	var (
		steps  []*TraceStep
		events []CallStackEvent
	)

	for {
		step, event, ok := it.Next()
		if !ok {
			break
		}

		steps = append(steps, step)
		events = append(events, event)
	}

	return steps, events
}

func TestDecoderAnnotatesSteps(t *testing.T) {
	to := addrA
	tx := &execution.Transaction{Hash: "0xtx", To: &to}

	logs := []execution.StructLog{
		{PC: 0, Op: "PUSH1", Depth: 1},
		{PC: 1, Op: "PUSH1", Depth: 1},
	}

	it, err := newTestDecoder(t, tx, logs).Trace(context.Background(), "0xtx")
	require.NoError(t, err)

	steps, _ := collectSteps(t, it)
	require.Len(t, steps, 2)

	assert.Equal(t, "A.sol", steps[0].UnitName)
	assert.Equal(t, "A", steps[0].ContractName)
	assert.Equal(t, 0, steps[0].Start)
	assert.Equal(t, 5, steps[0].Length)
	assert.True(t, steps[0].Code.Known)

	assert.Equal(t, 2, steps[1].Start)
	assert.Equal(t, 3, steps[1].Length)
	assert.Equal(t, 1, steps[1].Index)
}

func TestDecoderExternalCallSwitchesContract(t *testing.T) {
	to := addrA
	tx := &execution.Transaction{Hash: "0xtx", To: &to}

	calleeWord := "0x0000000000000000000000002000000000000000000000000000000000000002"

	logs := []execution.StructLog{
		{PC: 0, Op: "PUSH1", Depth: 1},
		{PC: 1, Op: "CALL", Depth: 1, Stack: []string{"0xff", calleeWord, "0x0"}},
		{PC: 0, Op: "PUSH1", Depth: 2},
		{PC: 1, Op: "STOP", Depth: 2},
		{PC: 2, Op: "PUSH1", Depth: 1},
	}

	it, err := newTestDecoder(t, tx, logs).Trace(context.Background(), "0xtx")
	require.NoError(t, err)

	steps, events := collectSteps(t, it)
	require.Len(t, steps, 5)

	assert.Equal(t, "A", steps[0].ContractName)
	assert.Equal(t, "A", steps[1].ContractName)

	// The callee address is the second stack word from the top at the call
	// site.
	assert.Equal(t, "B", steps[2].ContractName)
	assert.Equal(t, "B.sol", steps[2].UnitName)
	assert.Equal(t, EventPush, events[2].Kind)
	assert.Equal(t, 0, steps[2].Start)
	assert.Equal(t, 4, steps[2].Length)

	assert.Equal(t, "B", steps[3].ContractName)
	assert.Equal(t, 4, steps[3].Start)

	// Back in the caller after the callee halts.
	assert.Equal(t, "A", steps[4].ContractName)
	assert.Equal(t, EventPop, events[4].Kind)
	assert.Equal(t, 5, steps[4].Start)
}

func TestDecoderUnknownContractDegrades(t *testing.T) {
	to := "0x00000000000000000000000000000000000000ff"
	tx := &execution.Transaction{Hash: "0xtx", To: &to}

	logs := []execution.StructLog{{PC: 0, Op: "PUSH1", Depth: 1}}

	it, err := newTestDecoder(t, tx, logs).Trace(context.Background(), "0xtx")
	require.NoError(t, err)

	steps, _ := collectSteps(t, it)
	require.Len(t, steps, 1)

	assert.Empty(t, steps[0].UnitName)
	assert.Empty(t, steps[0].ContractName)
	assert.False(t, steps[0].Code.Known)
	assert.Equal(t, 0, steps[0].Start)
	assert.Equal(t, 0, steps[0].Length)
}

func TestDecoderUnknownTransaction(t *testing.T) {
	_, err := newTestDecoder(t, nil, nil).Trace(context.Background(), "0xmissing")
	assert.Error(t, err)
}

func TestIteratorExhaustion(t *testing.T) {
	to := addrA
	tx := &execution.Transaction{Hash: "0xtx", To: &to}

	it, err := newTestDecoder(t, tx, []execution.StructLog{{PC: 0, Op: "STOP", Depth: 1}}).
		Trace(context.Background(), "0xtx")
	require.NoError(t, err)

	_, _, ok := it.Next()
	assert.True(t, ok)

	_, _, ok = it.Next()
	assert.False(t, ok)

	_, _, ok = it.Next()
	assert.False(t, ok)
}
