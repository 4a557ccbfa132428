package testutil

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/ethereum/execution"
	"github.com/ethpandaops/tracedbg/pkg/trace"
)

// CountdownSource is the source text of the recursive Countdown fixture
// contract.
const CountdownSource = `contract Countdown {
    function run() public returns (uint256) {
        return down(2);
    }

    function down(uint256 n) internal pure returns (uint256 v) {
        if (n == 0) {
            return 0;
        }
        return down(n - 1);
    }
}
`

// CountdownAddress is the address the fixture contract is considered deployed
// at.
const CountdownAddress = "0x1000000000000000000000000000000000000002"

// CountdownRecursionDepth is the number of down activations in the canonical
// run: down(2) -> down(1) -> down(0).
const CountdownRecursionDepth = 3

// CountdownFixture is a synthetic compiled contract whose instruction stream
// recurses: run() computes down(2), which calls itself until the base case
// takes the early branch. The deployed bytecode is fourteen single-byte
// instructions, so program counters and instruction numbers coincide.
type CountdownFixture struct {
	Artifact *artifact.Artifact

	Contract    Range
	CallSite    Range
	AfterCall   Range
	FunctionDef Range
	Condition   Range
	BaseCase    Range
	RecCall     Range
	AfterRec    Range
}

func NewCountdownFixture(t *testing.T) *CountdownFixture {
	t.Helper()

	f := &CountdownFixture{
		Contract:  Range{Start: 0, Length: len(CountdownSource)},
		CallSite:  Span(t, CountdownSource, "down(2)"),
		AfterCall: Span(t, CountdownSource, "return down(2);"),
		Condition: Span(t, CountdownSource, "if (n == 0) {"),
		BaseCase:  Span(t, CountdownSource, "return 0;"),
		RecCall:   Span(t, CountdownSource, "down(n - 1)"),
		AfterRec:  Span(t, CountdownSource, "return down(n - 1);"),
	}

	fnStart := Span(t, CountdownSource, "function down")
	fnLength := strings.Index(CountdownSource[fnStart.Start:], "\n    }") + len("\n    }")
	f.FunctionDef = Range{Start: fnStart.Start, Length: fnLength}

	ast, err := json.Marshal(f.ast(t))
	require.NoError(t, err)

	f.Artifact = &artifact.Artifact{
		UnitName:      "Countdown.sol",
		ContractName:  "Countdown",
		SourcePath:    "Countdown.sol",
		Source:        CountdownSource,
		SourceList:    []string{"Countdown.sol"},
		Bin:           "60806041",
		BinRuntime:    strings.Repeat("00", 14),
		SrcmapRuntime: trace.EncodeSourceMap(f.mappings()),
		AST:           ast,
	}

	return f
}

// ID returns the fixture contract's identity.
func (f *CountdownFixture) ID() trace.ContractID {
	return trace.ContractID{UnitName: "Countdown.sol", ContractName: "Countdown"}
}

// mappings is the runtime source map, one record per instruction.
func (f *CountdownFixture) mappings() []trace.Mapping {
	m := func(r Range, jump trace.JumpKind) trace.Mapping {
		return trace.Mapping{Start: r.Start, Length: r.Length, File: r.File, Jump: jump}
	}

	return []trace.Mapping{
		m(f.Contract, trace.JumpRegular),    // 0
		m(f.CallSite, trace.JumpRegular),    // 1
		m(f.CallSite, trace.JumpIn),         // 2 JUMP into down
		m(f.AfterCall, trace.JumpRegular),   // 3 return destination in run
		m(f.Contract, trace.JumpRegular),    // 4 STOP
		m(f.FunctionDef, trace.JumpRegular), // 5 entry JUMPDEST
		m(f.Condition, trace.JumpRegular),   // 6
		m(f.Condition, trace.JumpRegular),   // 7 JUMPI to the base case
		m(f.RecCall, trace.JumpRegular),     // 8
		m(f.RecCall, trace.JumpIn),          // 9 recursive JUMP
		m(f.AfterRec, trace.JumpRegular),    // 10 recursive return destination
		m(f.FunctionDef, trace.JumpOut),     // 11 JUMP back
		m(f.BaseCase, trace.JumpRegular),    // 12 base-case JUMPDEST
		m(f.FunctionDef, trace.JumpOut),     // 13 base-case JUMP back
	}
}

// StructLogs is the canonical run: run() jumps into down(2), each activation
// pushes its return address and argument and re-enters at the same JUMPDEST,
// down(0) takes the base-case branch and the stack unwinds through the shared
// return destination. Stacks are pre-execution snapshots, top last.
func (f *CountdownFixture) StructLogs() []execution.StructLog {
	logs := []struct {
		pc    uint64
		op    string
		stack []string
	}{
		{0, "PUSH1", []string{}},
		{1, "PUSH1", []string{"0x0"}},
		{2, "JUMP", []string{"0x0", "0x3", "0x2", "0x5"}},
		{5, "JUMPDEST", []string{"0x0", "0x3", "0x2"}},
		{6, "ISZERO", []string{"0x0", "0x3", "0x2"}},
		{7, "JUMPI", []string{"0x0", "0x3", "0x2", "0x0", "0xc"}},
		{8, "PUSH1", []string{"0x0", "0x3", "0x2"}},
		{9, "JUMP", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0x5"}},
		{5, "JUMPDEST", []string{"0x0", "0x3", "0x2", "0xa", "0x1"}},
		{6, "ISZERO", []string{"0x0", "0x3", "0x2", "0xa", "0x1"}},
		{7, "JUMPI", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0x0", "0xc"}},
		{8, "PUSH1", []string{"0x0", "0x3", "0x2", "0xa", "0x1"}},
		{9, "JUMP", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0xa", "0x0", "0x5"}},
		{5, "JUMPDEST", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0xa", "0x0"}},
		{6, "ISZERO", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0xa", "0x0"}},
		{7, "JUMPI", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0xa", "0x0", "0x1", "0xc"}},
		{12, "JUMPDEST", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0xa", "0x0"}},
		{13, "JUMP", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0x0", "0xa"}},
		{10, "JUMPDEST", []string{"0x0", "0x3", "0x2", "0xa", "0x1", "0x0"}},
		{11, "JUMP", []string{"0x0", "0x3", "0x2", "0x0", "0xa"}},
		{10, "JUMPDEST", []string{"0x0", "0x3", "0x2", "0x0"}},
		{11, "JUMP", []string{"0x0", "0x0", "0x3"}},
		{3, "JUMPDEST", []string{"0x0", "0x0"}},
		{4, "STOP", []string{"0x0"}},
	}

	out := make([]execution.StructLog, len(logs))
	for i, l := range logs {
		out[i] = execution.StructLog{
			PC:    l.pc,
			Op:    l.op,
			Gas:   200000 - uint64(i)*3,
			Depth: 1,
			Stack: l.stack,
		}
	}

	return out
}

func (f *CountdownFixture) ast(t *testing.T) map[string]any {
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
		"src":      Span(t, CountdownSource, "function run").Src(),
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

	downDef := map[string]any{
		"nodeType": "FunctionDefinition",
		"name":     "down",
		"src":      f.FunctionDef.Src(),
		"parameters": map[string]any{
			"nodeType": "ParameterList",
			"parameters": []any{
				declaration("n", "uint256", Span(t, CountdownSource, "uint256 n")),
			},
		},
		"returnParameters": map[string]any{
			"nodeType": "ParameterList",
			"parameters": []any{
				declaration("v", "uint256", Span(t, CountdownSource, "uint256 v")),
			},
		},
		"body": map[string]any{
			"nodeType": "Block",
			"statements": []any{
				map[string]any{
					"nodeType": "IfStatement",
					"src":      f.Condition.Src(),
					"trueBody": map[string]any{
						"nodeType": "Block",
						"statements": []any{
							map[string]any{
								"nodeType": "Return",
								"src":      f.BaseCase.Src(),
							},
						},
					},
				},
				map[string]any{
					"nodeType": "Return",
					"src":      f.AfterRec.Src(),
					"expression": map[string]any{
						"nodeType": "FunctionCall",
						"src":      f.RecCall.Src(),
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
				"name":     "Countdown",
				"src":      f.Contract.Src(),
				"nodes":    []any{runDef, downDef},
			},
		},
	}
}
