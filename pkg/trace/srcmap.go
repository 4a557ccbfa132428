// Package trace reconstructs source-annotated execution steps and call-stack
// events from a raw EVM instruction trace, using only compiler artifacts. No
// debug-symbol format is involved: program counters are related to source
// ranges through the compressed source map, and the call stack is recovered
// heuristically from opcode patterns.
package trace

import (
	"fmt"
	"strconv"
	"strings"
)

// JumpKind classifies an instruction's jump behavior in the source map:
// 'i' jumps into a function, 'o' jumps out of one, '-' is a regular jump.
type JumpKind string

const (
	JumpIn      JumpKind = "i"
	JumpOut     JumpKind = "o"
	JumpRegular JumpKind = "-"
)

// Mapping is one decompressed source-map record: the source range an
// instruction was compiled from, plus its jump classification.
type Mapping struct {
	Start  int
	Length int
	File   int
	Jump   JumpKind
}

// sentinelMapping is returned for instructions with no resolvable source.
var sentinelMapping = Mapping{Start: 0, Length: 0, File: 0, Jump: JumpRegular}

// DecodeSourceMap expands a compressed source map. Records are separated by
// ';', fields within a record by ':'. An omitted trailing field, or an
// entirely empty record, inherits the value from the previous record. Fields
// may be negative (the compiler uses -1 for generated code).
func DecodeSourceMap(srcmap string) ([]Mapping, error) {
	records := strings.Split(srcmap, ";")
	out := make([]Mapping, 0, len(records))

	last := sentinelMapping

	for i, record := range records {
		fields := strings.Split(record, ":")

		m := last

		if len(fields) > 0 && fields[0] != "" {
			v, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("source map record %d: invalid start %q: %w", i, fields[0], err)
			}

			m.Start = v
		}

		if len(fields) > 1 && fields[1] != "" {
			v, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("source map record %d: invalid length %q: %w", i, fields[1], err)
			}

			m.Length = v
		}

		if len(fields) > 2 && fields[2] != "" {
			v, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("source map record %d: invalid file index %q: %w", i, fields[2], err)
			}

			m.File = v
		}

		if len(fields) > 3 && fields[3] != "" {
			m.Jump = JumpKind(fields[3])
		}

		last = m
		out = append(out, m)
	}

	return out, nil
}

// EncodeSourceMap compresses a mapping table back into its textual form,
// applying the same field/record inheritance rules the decoder expands. It is
// the round-trip oracle for the decoder; production code only decodes.
func EncodeSourceMap(mappings []Mapping) string {
	var sb strings.Builder

	last := sentinelMapping

	for i, m := range mappings {
		if i > 0 {
			sb.WriteByte(';')
		}

		fields := make([]string, 0, 4)

		if m.Jump != last.Jump {
			fields = []string{
				strconv.Itoa(m.Start), strconv.Itoa(m.Length), strconv.Itoa(m.File), string(m.Jump),
			}
		} else if m.File != last.File {
			fields = []string{strconv.Itoa(m.Start), strconv.Itoa(m.Length), strconv.Itoa(m.File)}
		} else if m.Length != last.Length {
			fields = []string{strconv.Itoa(m.Start), strconv.Itoa(m.Length)}
		} else if m.Start != last.Start {
			fields = []string{strconv.Itoa(m.Start)}
		}

		for j, f := range fields {
			if j > 0 {
				sb.WriteByte(':')
			}

			sb.WriteString(f)
		}

		last = m
	}

	return sb.String()
}
