package trace

import "fmt"

// PUSH1..PUSH32 carry 1..32 bytes of immediate data; every other opcode is a
// single byte.
const (
	opPushFirst = 0x60
	opPushLast  = 0x7f
)

// CodeDecoder resolves a program counter within one contract's deployed
// bytecode to a source mapping.
type CodeDecoder interface {
	GetMapping(pc uint64) Mapping
}

// ContractDecoder is the CodeDecoder for a known compiled contract: a byte
// address to instruction number table paired with the decompressed source map.
type ContractDecoder struct {
	pcToInstruction []int
	sources         []Mapping
}

// NewContractDecoder builds the decoder from deployed bytecode and its
// compressed runtime source map.
func NewContractDecoder(bytecode []byte, srcmap string) (*ContractDecoder, error) {
	sources, err := DecodeSourceMap(srcmap)
	if err != nil {
		return nil, fmt.Errorf("failed to decode runtime source map: %w", err)
	}

	return &ContractDecoder{
		pcToInstruction: mapAddressToInstructionNumber(bytecode),
		sources:         sources,
	}, nil
}

// GetMapping returns the source mapping for the instruction containing the
// byte address pc. Addresses outside the bytecode, or instruction numbers
// beyond the source map, degrade to the sentinel mapping.
func (d *ContractDecoder) GetMapping(pc uint64) Mapping {
	if pc >= uint64(len(d.pcToInstruction)) {
		return sentinelMapping
	}

	n := d.pcToInstruction[pc]
	if n >= len(d.sources) {
		return sentinelMapping
	}

	return d.sources[n]
}

// InstructionCount returns the number of decoded instructions.
func (d *ContractDecoder) InstructionCount() int {
	if len(d.pcToInstruction) == 0 {
		return 0
	}

	return d.pcToInstruction[len(d.pcToInstruction)-1] + 1
}

// mapAddressToInstructionNumber walks the bytecode byte by byte. A push
// instruction and all of its immediate bytes map to the same instruction
// number; the immediate bytes are never visited as opcodes.
func mapAddressToInstructionNumber(bytecode []byte) []int {
	out := make([]int, 0, len(bytecode))

	n := 0

	for addr := 0; addr < len(bytecode); {
		length := 1

		if op := bytecode[addr]; op >= opPushFirst && op <= opPushLast {
			length += int(op) - (opPushFirst - 1)
		}

		for i := 0; i < length && addr+i < len(bytecode); i++ {
			out = append(out, n)
		}

		n++
		addr += length
	}

	return out
}

// PassthroughDecoder is the CodeDecoder used when the executing contract is
// not among the known artifacts. Every address resolves to the sentinel.
type PassthroughDecoder struct{}

func (PassthroughDecoder) GetMapping(uint64) Mapping {
	return sentinelMapping
}
