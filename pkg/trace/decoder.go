package trace

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/common"
	"github.com/ethpandaops/tracedbg/pkg/ethereum/execution"
)

// TraceStep is one executed instruction, annotated with the contract identity
// executing it and its resolved source range. Steps are immutable once
// produced.
type TraceStep struct {
	Index        int
	Depth        int
	UnitName     string
	ContractName string

	PC      uint64
	Op      string
	Stack   []string
	Memory  []string
	Storage map[string]string
	Gas     uint64
	Error   string

	Start  int
	Length int
	File   int
	Jump   JumpKind

	Code SourceMapping
}

// TraceSource is the slice of the execution node the decoder needs.
type TraceSource interface {
	TransactionByHash(ctx context.Context, hash string) (*execution.Transaction, error)
	DebugTraceTransaction(ctx context.Context, hash string, opts execution.TraceOptions) (*execution.TraceTransaction, error)
}

// Decoder turns raw instruction logs into source-annotated steps. It owns the
// source mapper and the contract identity table; one Decoder serves any number
// of transactions.
type Decoder struct {
	log        logrus.FieldLogger
	source     TraceSource
	artifacts  *artifact.List
	identifier *ContractIdentifier
	srcmapper  *SourceMapper
	decoders   map[ContractID]CodeDecoder
}

func NewDecoder(log logrus.FieldLogger, source TraceSource, artifacts *artifact.List, identifier *ContractIdentifier) *Decoder {
	return &Decoder{
		log:        log.WithField("component", "trace/decoder"),
		source:     source,
		artifacts:  artifacts,
		identifier: identifier,
		srcmapper:  NewSourceMapper(artifacts),
		decoders:   map[ContractID]CodeDecoder{},
	}
}

// SourceMapper exposes the decoder's source mapper for AST-side lookups.
func (d *Decoder) SourceMapper() *SourceMapper {
	return d.srcmapper
}

// Trace fetches the raw instruction log for a transaction and returns a
// forward-only iterator over annotated steps. The sequence is not
// restartable: a fresh call re-fetches and starts over.
func (d *Decoder) Trace(ctx context.Context, txhash string) (*Iterator, error) {
	tx, err := d.source.TransactionByHash(ctx, txhash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txhash, err)
	}

	result, err := d.source.DebugTraceTransaction(ctx, txhash, execution.DebuggerTraceOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trace for %s: %w", txhash, err)
	}

	return &Iterator{
		dec:       d,
		tx:        tx,
		logs:      result.StructLogs,
		callstack: NewCallStack(),
		prevDepth: -1,
	}, nil
}

// traceFrame is the per-call-depth decoding context: which contract the VM is
// executing at that depth and how to map its program counters.
type traceFrame struct {
	unitName     string
	contractName string
	decoder      CodeDecoder
}

// Iterator yields annotated steps strictly in trace order.
type Iterator struct {
	dec       *Decoder
	tx        *execution.Transaction
	logs      []execution.StructLog
	callstack *CallStack

	i         int
	frames    []traceFrame
	prevDepth int
}

// Next returns the next annotated step and its call-stack event, or ok=false
// when the trace is exhausted.
func (it *Iterator) Next() (*TraceStep, CallStackEvent, bool) {
	if it.i >= len(it.logs) {
		return nil, CallStackEvent{Kind: EventNone}, false
	}

	log := it.logs[it.i]
	i := it.i
	it.i++

	// Entering a deeper call: resolve the callee to a contract identity and
	// stack a decoder for it. Leaving a call discards the top decoder.
	switch {
	case i == 0 || log.Depth > it.prevDepth:
		it.frames = append(it.frames, it.resolveFrame(i))
	case log.Depth < it.prevDepth && len(it.frames) > 1:
		it.frames = it.frames[:len(it.frames)-1]
	}

	it.prevDepth = log.Depth

	frame := it.frames[len(it.frames)-1]
	mapping := frame.decoder.GetMapping(log.PC)

	step := &TraceStep{
		Index:        i,
		Depth:        log.Depth,
		UnitName:     frame.unitName,
		ContractName: frame.contractName,
		PC:           log.PC,
		Op:           log.Op,
		Stack:        log.Stack,
		Memory:       log.Memory,
		Storage:      log.Storage,
		Gas:          log.Gas,
		Start:        mapping.Start,
		Length:       mapping.Length,
		File:         mapping.File,
		Jump:         mapping.Jump,
	}

	if log.Error != nil {
		step.Error = *log.Error
	}

	step.Code = it.dec.srcmapper.GetSource(frame.unitName, mapping.Start, mapping.Length, mapping.File)

	event := it.callstack.Add(step)

	common.TraceStepsDecoded.WithLabelValues(frame.contractName).Inc()

	return step, event, true
}

// resolveFrame determines the contract executing at step i. The first step
// executes the transaction target; deeper calls read the callee address from
// the previous step's stack. Unknown addresses degrade to a pass-through
// decoder rather than failing the session.
func (it *Iterator) resolveFrame(i int) traceFrame {
	var address string

	if i == 0 {
		if it.tx.To != nil {
			address = *it.tx.To
		}
	} else if prevStack := it.logs[i-1].Stack; len(prevStack) >= 2 {
		// The callee address is the second stack word from the top at the
		// call site.
		address = stackAddress(prevStack[len(prevStack)-2])
	}

	unknown := traceFrame{decoder: PassthroughDecoder{}}

	if address == "" {
		return unknown
	}

	id, ok := it.dec.identifier.Lookup(address)
	if !ok {
		it.dec.log.WithField("address", address).Debug("No contract identity for call target")

		return unknown
	}

	return traceFrame{
		unitName:     id.UnitName,
		contractName: id.ContractName,
		decoder:      it.dec.codeDecoder(id),
	}
}

// codeDecoder returns the cached per-contract decoder, building it on first
// use. Broken artifacts degrade to the pass-through decoder.
func (d *Decoder) codeDecoder(id ContractID) CodeDecoder {
	if dec, ok := d.decoders[id]; ok {
		return dec
	}

	var dec CodeDecoder = PassthroughDecoder{}

	defer func() { d.decoders[id] = dec }()

	a, ok := d.artifacts.Get(id.UnitName, id.ContractName)
	if !ok {
		return dec
	}

	bytecode, err := a.RuntimeBytecode()
	if err != nil {
		d.log.WithError(err).Warn("Failed to decode runtime bytecode, degrading to unknown source")

		return dec
	}

	contractDec, err := NewContractDecoder(bytecode, a.SrcmapRuntime)
	if err != nil {
		d.log.WithError(err).Warn("Failed to decode source map, degrading to unknown source")

		return dec
	}

	dec = contractDec

	return dec
}

// stackAddress extracts the 20-byte address from a 32-byte stack word in hex.
func stackAddress(word string) string {
	w := strings.TrimPrefix(word, "0x")

	if len(w) > 40 {
		w = w[len(w)-40:]
	}

	return strings.ToLower(strings.Repeat("0", 40-len(w)) + w)
}
