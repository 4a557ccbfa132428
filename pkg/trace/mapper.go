package trace

import (
	"sort"
	"strings"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
)

// SourceMapping is a resolved source location for one instruction.
type SourceMapping struct {
	// UnitName is the source unit the range falls in; Known is false when the
	// file index did not resolve to any loaded source.
	UnitName string
	Known    bool

	Source    string
	Lines     []string
	LineIndex int
	LineStart int
	LinePos   int
}

// sourcePos precomputes the newline offsets of one source text so that
// absolute character offsets can be resolved to (line, line start) pairs.
type sourcePos struct {
	source string
	lines  []string
	splits []int
}

func newSourcePos(source string) *sourcePos {
	p := &sourcePos{
		source: source,
		lines:  strings.Split(source, "\n"),
	}

	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			p.splits = append(p.splits, i)
		}
	}

	return p
}

// lineOf returns the line index containing offset and that line's start
// offset: the greatest line start that is <= offset.
func (p *sourcePos) lineOf(offset int) (lineIndex, lineStart int) {
	lineIndex = sort.Search(len(p.splits), func(i int) bool {
		return p.splits[i] >= offset
	})

	// A newline offset resolves to the line it opens.
	if lineIndex < len(p.splits) && p.splits[lineIndex] == offset {
		lineIndex++
	}

	if lineIndex > 0 {
		lineStart = p.splits[lineIndex-1] + 1
	}

	return lineIndex, lineStart
}

// SourceMapper resolves (unit, start, length, file index) tuples to source
// locations across every loaded artifact.
type SourceMapper struct {
	posmappers map[string]*sourcePos
	fileUnits  map[fileRef]string
	null       *sourcePos
}

type fileRef struct {
	unitName string
	file     int
}

// NewSourceMapper indexes the sources of every artifact in the list.
func NewSourceMapper(artifacts *artifact.List) *SourceMapper {
	m := &SourceMapper{
		posmappers: map[string]*sourcePos{},
		fileUnits:  map[fileRef]string{},
		null:       newSourcePos(""),
	}

	for _, a := range artifacts.All() {
		m.posmappers[a.UnitName] = newSourcePos(a.Source)

		for fi, unit := range a.SourceList {
			m.fileUnits[fileRef{unitName: a.UnitName, file: fi}] = unit
		}
	}

	return m
}

// UnitName resolves a file index relative to a compilation unit's source list.
func (m *SourceMapper) UnitName(unitName string, file int) (string, bool) {
	unit, ok := m.fileUnits[fileRef{unitName: unitName, file: file}]

	return unit, ok
}

// GetSource resolves a source range to a SourceMapping. An unresolvable file
// index yields the empty-source sentinel whose line is always 0. A start
// offset before the resolved line start clamps the column to the line length
// instead of going negative.
func (m *SourceMapper) GetSource(unitName string, start, length, file int) SourceMapping {
	resolved := ""
	known := false

	posmapper := m.null

	if unit, ok := m.UnitName(unitName, file); ok {
		if p, ok := m.posmappers[unit]; ok {
			resolved = unit
			known = true
			posmapper = p
		}
	}

	lineIndex, lineStart := posmapper.lineOf(start)

	linePos := start - lineStart
	if linePos < 0 {
		linePos = len(posmapper.lines[lineIndex])
	}

	return SourceMapping{
		UnitName:  resolved,
		Known:     known,
		Source:    posmapper.source,
		Lines:     posmapper.lines,
		LineIndex: lineIndex,
		LineStart: lineStart,
		LinePos:   linePos,
	}
}
