// Package testutil provides synthetic compiled contracts and trace fixtures
// for tests. The fixtures are hand-assembled: bytecode, source map, AST and
// instruction log are kept consistent with each other so decoding behaves as
// it would on real compiler output.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/ethereum/execution"
	"github.com/ethpandaops/tracedbg/pkg/trace"
)

// NewLogger returns a logger that discards everything.
func NewLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

// Range is a source range in (start, length, file) form.
type Range struct {
	Start  int
	Length int
	File   int
}

// Src renders the range the way AST nodes carry it.
func (r Range) Src() string {
	return fmt.Sprintf("%d:%d:%d", r.Start, r.Length, r.File)
}

// Span locates a substring in a source text and returns its range.
func Span(t *testing.T, source, substr string) Range {
	t.Helper()

	start := strings.Index(source, substr)
	require.GreaterOrEqual(t, start, 0, "fixture source must contain %q", substr)

	return Range{Start: start, Length: len(substr)}
}

// AdderSource is the source text of the Adder fixture contract.
const AdderSource = `contract Adder {
    function run() public payable returns (uint256) {
        return add(2, 3);
    }

    function add(uint256 a, uint256 b) internal pure returns (uint256 r) {
        uint256 c = a + b;
        r = c;
        return r;
    }
}
`

// AdderAddress is the address the fixture contract is considered deployed at.
const AdderAddress = "0x1000000000000000000000000000000000000001"

// AdderFixture is a synthetic compiled contract whose instruction stream
// walks an internal call: run() computes add(2, 3) with msg.value 5. The
// deployed bytecode is twelve single-byte instructions, so program counters
// and instruction numbers coincide.
type AdderFixture struct {
	Artifact *artifact.Artifact

	Contract    Range
	CallSite    Range
	AfterCall   Range
	FunctionDef Range
	VarDecl     Range
	Assign      Range
}

func NewAdderFixture(t *testing.T) *AdderFixture {
	t.Helper()

	f := &AdderFixture{
		Contract:  Range{Start: 0, Length: len(AdderSource)},
		CallSite:  Span(t, AdderSource, "add(2, 3)"),
		AfterCall: Span(t, AdderSource, "return add(2, 3);"),
		VarDecl:   Span(t, AdderSource, "uint256 c = a + b;"),
		Assign:    Span(t, AdderSource, "r = c;"),
	}

	fnStart := Span(t, AdderSource, "function add")
	fnLength := strings.Index(AdderSource[fnStart.Start:], "    }") + len("    }")
	f.FunctionDef = Range{Start: fnStart.Start, Length: fnLength}

	ast, err := json.Marshal(f.ast(t))
	require.NoError(t, err)

	f.Artifact = &artifact.Artifact{
		UnitName:      "Adder.sol",
		ContractName:  "Adder",
		SourcePath:    "Adder.sol",
		Source:        AdderSource,
		SourceList:    []string{"Adder.sol"},
		Bin:           "60806040",
		BinRuntime:    strings.Repeat("00", 12),
		SrcmapRuntime: trace.EncodeSourceMap(f.mappings()),
		AST:           ast,
	}

	return f
}

// ID returns the fixture contract's identity.
func (f *AdderFixture) ID() trace.ContractID {
	return trace.ContractID{UnitName: "Adder.sol", ContractName: "Adder"}
}

// mappings is the runtime source map, one record per instruction.
func (f *AdderFixture) mappings() []trace.Mapping {
	m := func(r Range, jump trace.JumpKind) trace.Mapping {
		return trace.Mapping{Start: r.Start, Length: r.Length, File: r.File, Jump: jump}
	}

	return []trace.Mapping{
		m(f.Contract, trace.JumpRegular),    // 0
		m(f.Contract, trace.JumpRegular),    // 1 CALLVALUE
		m(f.CallSite, trace.JumpRegular),    // 2
		m(f.CallSite, trace.JumpIn),         // 3 JUMP into add
		m(f.AfterCall, trace.JumpRegular),   // 4 return destination
		m(f.Contract, trace.JumpRegular),    // 5
		m(f.Contract, trace.JumpRegular),    // 6
		m(f.Contract, trace.JumpRegular),    // 7
		m(f.FunctionDef, trace.JumpRegular), // 8 entry JUMPDEST
		m(f.VarDecl, trace.JumpRegular),     // 9
		m(f.Assign, trace.JumpRegular),      // 10
		m(f.FunctionDef, trace.JumpOut),     // 11 JUMP back
	}
}

// StructLogs is the canonical run: msg.value lands on the stack, run() jumps
// into add(2, 3), the sum is declared, assigned to the return slot and
// returned. Stacks are pre-execution snapshots, top last.
func (f *AdderFixture) StructLogs() []execution.StructLog {
	logs := []struct {
		pc    uint64
		op    string
		stack []string
	}{
		{0, "PUSH1", []string{}},
		{1, "CALLVALUE", []string{}},
		{2, "PUSH1", []string{"0x5"}},
		{3, "JUMP", []string{"0x5", "0x4", "0x2", "0x3", "0x8"}},
		{8, "JUMPDEST", []string{"0x5", "0x4", "0x2", "0x3"}},
		{9, "SWAP1", []string{"0x5", "0x4", "0x3", "0x5"}},
		{10, "SWAP1", []string{"0x5", "0x4", "0x5", "0x5"}},
		{11, "JUMP", []string{"0x5", "0x5", "0x4"}},
		{4, "JUMPDEST", []string{"0x5", "0x5"}},
		{5, "STOP", []string{"0x5"}},
	}

	out := make([]execution.StructLog, len(logs))
	for i, l := range logs {
		out[i] = execution.StructLog{
			PC:    l.pc,
			Op:    l.op,
			Gas:   100000 - uint64(i)*3,
			Depth: 1,
			Stack: l.stack,
		}
	}

	return out
}

func (f *AdderFixture) ast(t *testing.T) map[string]any {
	t.Helper()

	declaration := func(name, typeString string, src Range) map[string]any {
		return map[string]any{
			"nodeType":         "VariableDeclaration",
			"name":             name,
			"src":              src.Src(),
			"typeDescriptions": map[string]any{"typeString": typeString},
		}
	}

	runDef := map[string]any{
		"nodeType": "FunctionDefinition",
		"name":     "run",
		"src":      Span(t, AdderSource, "function run").Src(),
		"body": map[string]any{
			"nodeType": "Block",
			"statements": []any{
				map[string]any{
					"nodeType": "Return",
					"src":      f.AfterCall.Src(),
					"expression": map[string]any{
						"nodeType": "FunctionCall",
						"src":      f.CallSite.Src(),
					},
				},
			},
		},
	}

	assignTarget := Span(t, AdderSource, "r = c")

	addDef := map[string]any{
		"nodeType": "FunctionDefinition",
		"name":     "add",
		"src":      f.FunctionDef.Src(),
		"parameters": map[string]any{
			"nodeType": "ParameterList",
			"parameters": []any{
				declaration("a", "uint256", Span(t, AdderSource, "uint256 a")),
				declaration("b", "uint256", Span(t, AdderSource, "uint256 b")),
			},
		},
		"returnParameters": map[string]any{
			"nodeType": "ParameterList",
			"parameters": []any{
				declaration("r", "uint256", Span(t, AdderSource, "uint256 r")),
			},
		},
		"body": map[string]any{
			"nodeType": "Block",
			"statements": []any{
				map[string]any{
					"nodeType": "VariableDeclarationStatement",
					"src":      f.VarDecl.Src(),
					"declarations": []any{
						declaration("c", "uint256", Span(t, AdderSource, "uint256 c")),
					},
				},
				map[string]any{
					"nodeType": "ExpressionStatement",
					"src":      f.Assign.Src(),
					"expression": map[string]any{
						"nodeType": "Assignment",
						"src":      assignTarget.Src(),
						"leftHandSide": map[string]any{
							"nodeType":         "Identifier",
							"name":             "r",
							"src":              Range{Start: assignTarget.Start, Length: 1}.Src(),
							"typeDescriptions": map[string]any{"typeString": "uint256"},
						},
					},
				},
			},
		},
	}

	return map[string]any{
		"nodeType": "SourceUnit",
		"src":      f.Contract.Src(),
		"nodes": []any{
			map[string]any{
				"nodeType": "ContractDefinition",
				"name":     "Adder",
				"src":      f.Contract.Src(),
				"nodes":    []any{runDef, addDef},
			},
		},
	}
}

// StaticSource serves a fixed transaction and trace, standing in for an
// execution node.
type StaticSource struct {
	Tx   *execution.Transaction
	Logs []execution.StructLog
}

func (s *StaticSource) TransactionByHash(_ context.Context, hash string) (*execution.Transaction, error) {
	if s.Tx == nil || s.Tx.Hash != hash {
		return nil, fmt.Errorf("transaction %s not found", hash)
	}

	return s.Tx, nil
}

func (s *StaticSource) DebugTraceTransaction(_ context.Context, _ string, _ execution.TraceOptions) (*execution.TraceTransaction, error) {
	return &execution.TraceTransaction{
		Gas:        21000,
		StructLogs: s.Logs,
	}, nil
}
