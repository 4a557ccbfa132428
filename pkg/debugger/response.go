package debugger

import (
	"path/filepath"
	"strings"

	"github.com/ethpandaops/tracedbg/pkg/trace"
)

// CodeObject is the source location payload carried by step, breakpoint,
// frame and list responses.
type CodeObject struct {
	Path         *string `json:"path"`
	AbsolutePath *string `json:"absolute_path"`
	LineIndex    int     `json:"line_index"`
	LinePos      int     `json:"line_pos"`
	LineLength   int     `json:"line_length"`
	LineStart    int     `json:"line_start"`
	Text         string  `json:"text"`
}

type StepResponse struct {
	Type           string        `json:"type"`
	Code           *CodeObject   `json:"code"`
	AssignedValues []ValueObject `json:"assigned_values"`
	IsReturn       bool          `json:"is_return"`
	ReturnValues   []ValueObject `json:"return_values"`
	Warnings       []string      `json:"warnings,omitempty"`
}

type BreakpointResponse struct {
	Type string      `json:"type"`
	Code *CodeObject `json:"code"`
}

type RevertResponse struct {
	Type string      `json:"type"`
	Code *CodeObject `json:"code"`
}

type EndResponse struct {
	Type string `json:"type"`
}

type PrintResponse struct {
	Type          string       `json:"type"`
	FrameIndex    int          `json:"frame_index"`
	VariableName  string       `json:"variable_name"`
	FrameFound    bool         `json:"frame_found"`
	VariableFound bool         `json:"variable_found"`
	Variable      *ValueObject `json:"variable"`
}

type InfoLocalsResponse struct {
	Type       string        `json:"type"`
	FrameIndex int           `json:"frame_index"`
	FrameFound bool          `json:"frame_found"`
	Variables  []ValueObject `json:"variables"`
}

type InfoArgsResponse struct {
	Type          string          `json:"type"`
	FrameIndex    int             `json:"frame_index"`
	FrameFound    bool            `json:"frame_found"`
	FunctionFound bool            `json:"function_found"`
	Function      *FunctionObject `json:"function"`
}

type InfoBreakpointsResponse struct {
	Type        string   `json:"type"`
	Breakpoints []string `json:"breakpoints"`
}

type BreakResponse struct {
	Type           string `json:"type"`
	BreakpointName string `json:"breakpoint_name"`
}

type DeleteResponse struct {
	Type            string `json:"type"`
	BreakpointFound bool   `json:"breakpoint_found"`
	BreakpointName  string `json:"breakpoint_name"`
}

type FrameResponse struct {
	Type       string      `json:"type"`
	FrameIndex int         `json:"frame_index"`
	FrameFound bool        `json:"frame_found"`
	Code       *CodeObject `json:"code"`
}

type BacktraceFrame struct {
	Index         int             `json:"index"`
	FunctionFound bool            `json:"function_found"`
	Function      *FunctionObject `json:"function"`
	Description   string          `json:"description"`
}

type BacktraceResponse struct {
	Type   string           `json:"type"`
	Frames []BacktraceFrame `json:"frames"`
}

type ListResponse struct {
	Type string      `json:"type"`
	Code *CodeObject `json:"code"`
}

type QuitResponse struct {
	Type string `json:"type"`
}

// formatCode renders the source window around a step's mapped range.
func (i *Interactive) formatCode(step *trace.TraceStep) *CodeObject {
	text := sourceLines(step, false, i.codeLinesBefore, i.codeLinesAfter)

	obj := &CodeObject{Text: text}

	if step == nil {
		return obj
	}

	obj.LineIndex = step.Code.LineIndex
	obj.LinePos = step.Code.LinePos
	obj.LineLength = step.Length
	obj.LineStart = step.Code.LineStart

	if step.Code.Known {
		unit := step.Code.UnitName
		obj.Path = &unit

		abs := unit
		if !strings.HasPrefix(unit, "source#") {
			if a, err := filepath.Abs(unit); err == nil {
				abs = a
			}
		}

		obj.AbsolutePath = &abs
	}

	return obj
}

// sourceLines renders the source around a step's range as plain text: up to
// `before` whole lines of leading context, then the text from the start of
// the mapped line, truncated once `after` additional lines have been shown.
func sourceLines(step *trace.TraceStep, strip bool, before, after int) string {
	if step == nil || step.File == -1 || !step.Code.Known {
		return "<unknown>"
	}

	var sb strings.Builder

	for i := step.Code.LineIndex - before; i < step.Code.LineIndex; i++ {
		if i >= 0 && i < len(step.Code.Lines) {
			sb.WriteString(step.Code.Lines[i])
			sb.WriteByte('\n')
		}
	}

	source := step.Code.Source[step.Code.LineStart:]

	pos := step.Code.LinePos
	if pos > len(source) {
		pos = len(source)
	}

	end := pos + step.Length
	if end > len(source) {
		end = len(source)
	}

	left := source[:pos]
	middle := source[pos:end]
	right := source[end:]

	if strip {
		left = strings.TrimLeft(left, " \t")
		right = strings.TrimRight(right, " \t\n")
	}

	remaining := after

	for _, segment := range []string{left, middle, right} {
		count := strings.Count(segment, "\n")
		if count > remaining {
			lines := strings.SplitN(segment, "\n", remaining+2)
			sb.WriteString(strings.Join(lines[:remaining+1], "\n"))

			return sb.String()
		}

		sb.WriteString(segment)

		remaining -= count
	}

	return sb.String()
}
