package debugger

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/tracedbg/pkg/common"
	"github.com/ethpandaops/tracedbg/pkg/trace"
)

// Request is one protocol command.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Response is the tagged reply to a Request.
type Response struct {
	Status   string     `json:"status"`
	Response any        `json:"response,omitempty"`
	What     *ErrorInfo `json:"what,omitempty"`
}

// ErrorInfo describes a user or internal error; it is never fatal to the
// session.
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusQuit  = "quit"
)

// stopKind tags the outcome of the step-driving loop. Stops are expected
// control flow, not errors.
type stopKind int

const (
	stopStep stopKind = iota
	stopBreakpoint
	stopRevert
	stopTerminate
)

type stopSignal struct {
	kind stopKind
	args []string
}

// Interactive exposes gdb-style commands over a Core. One instance owns one
// debugging session; no concurrent use is supported.
type Interactive struct {
	log  logrus.FieldLogger
	core *Core

	breakpoints  map[string]struct{}
	currentFrame int

	codeLinesBefore int
	codeLinesAfter  int

	quit     bool
	commands map[string]func(args []string) (any, error)
}

// Options tunes the session's source rendering.
type Options struct {
	CodeLinesBefore int
	CodeLinesAfter  int
}

var errSyntax = fmt.Errorf("syntax error")

func NewInteractive(log logrus.FieldLogger, core *Core, opts Options) *Interactive {
	if opts.CodeLinesBefore <= 0 {
		opts.CodeLinesBefore = 3
	}

	if opts.CodeLinesAfter <= 0 {
		opts.CodeLinesAfter = 6
	}

	i := &Interactive{
		log:             log.WithField("component", "debugger/interactive"),
		core:            core,
		breakpoints:     map[string]struct{}{},
		codeLinesBefore: opts.CodeLinesBefore,
		codeLinesAfter:  opts.CodeLinesAfter,
	}

	i.commands = map[string]func(args []string) (any, error){
		"print":             i.cmdPrint,
		"info_locals":       i.cmdInfoLocals,
		"info_args":         i.cmdInfoArgs,
		"info_breakpoints":  i.cmdInfoBreakpoints,
		"break":             i.cmdBreak,
		"delete":            i.cmdDelete,
		"frame":             i.cmdFrame,
		"continue":          i.cmdContinue,
		"step":              i.cmdStep,
		"stepi":             i.cmdStepi,
		"next":              i.cmdNext,
		"finish":            i.cmdFinish,
		"backtrace":         i.cmdBacktrace,
		"list":              i.cmdList,
		"quit":              i.cmdQuit,
	}

	return i
}

// Call dispatches one request. After quit, every call answers with the quit
// status.
func (i *Interactive) Call(req Request) Response {
	if i.quit {
		return Response{Status: StatusQuit}
	}

	handler, ok := i.commands[req.Command]
	if !ok {
		common.DebugCommandsTotal.WithLabelValues(req.Command, "error").Inc()

		return Response{Status: StatusError, What: &ErrorInfo{
			Name:    "UnknownCommand",
			Message: fmt.Sprintf("unknown command %q", req.Command),
		}}
	}

	response, err := handler(req.Args)
	if err != nil {
		common.DebugCommandsTotal.WithLabelValues(req.Command, "error").Inc()

		name := "CommandError"
		if err == errSyntax {
			name = "SyntaxError"
		}

		return Response{Status: StatusError, What: &ErrorInfo{Name: name, Message: err.Error()}}
	}

	common.DebugCommandsTotal.WithLabelValues(req.Command, "success").Inc()

	return Response{Status: StatusOK, Response: response}
}

// --- stepping commands ---

func (i *Interactive) cmdContinue([]string) (any, error) {
	return i.stopResponse(i.runContinue("continue")), nil
}

func (i *Interactive) cmdStepi([]string) (any, error) {
	return i.stopResponse(i.runContinue("stepi")), nil
}

func (i *Interactive) cmdStep([]string) (any, error) {
	return i.stopResponse(i.runContinue("step")), nil
}

func (i *Interactive) cmdNext([]string) (any, error) {
	return i.stopResponse(i.runContinue("next")), nil
}

func (i *Interactive) cmdFinish([]string) (any, error) {
	i.core.Step()

	return i.stopResponse(i.runContinue("finish")), nil
}

// runContinue advances the core until the mode's stop condition, a
// breakpoint, a revert or the end of the trace.
func (i *Interactive) runContinue(mode string) stopSignal {
	prevDepth := i.core.Depth()
	prev := i.core.GetStep(0)

	depth := 0

	for {
		i.core.Step()

		s := i.core.GetStep(0)

		switch s.Event.Kind {
		case trace.EventPush:
			depth++
		case trace.EventPop:
			depth--
		}

		if !s.Valid() {
			return stopSignal{kind: stopTerminate}
		}

		if stop := i.checkBreak(s, depth); stop != nil {
			return *stop
		}

		switch mode {
		case "stepi":
			return stopSignal{kind: stopStep}

		case "step":
			if !prev.Valid() {
				return stopSignal{kind: stopStep}
			}

			if !sameSource(s.TraceStep, prev.TraceStep) {
				return stopSignal{kind: stopStep}
			}

			if len(s.Values) > 0 {
				return stopSignal{kind: stopStep}
			}

		case "next":
			if i.core.Depth() <= prevDepth {
				if !prev.Valid() {
					return stopSignal{kind: stopStep}
				}

				if !sameSource(s.TraceStep, prev.TraceStep) {
					return stopSignal{kind: stopStep}
				}

				if len(s.Values) > 0 {
					return stopSignal{kind: stopStep}
				}
			}

		case "finish":
			next := i.core.GetStep(1)
			if !next.Valid() {
				return stopSignal{kind: stopStep, args: []string{"warning", "program_terminated"}}
			}

			if i.core.Depth() < prevDepth {
				return stopSignal{kind: stopStep, args: []string{"warning", "unexpected_return"}}
			}

			if i.core.Depth() == prevDepth && next.Event.Kind == trace.EventPop {
				return stopSignal{kind: stopStep, args: []string{"return"}}
			}
		}
	}
}

// checkBreak tests the current step against the revert instruction and the
// registered breakpoints. depth is the relative call depth accumulated since
// the command started.
func (i *Interactive) checkBreak(s *Step, depth int) *stopSignal {
	prev := i.core.GetStep(-1)

	op := strings.ToUpper(s.TraceStep.Op)
	if op == "REVERT" {
		return &stopSignal{kind: stopRevert}
	}

	if op == "JUMPDEST" && prev.Valid() && prev.TraceStep.Jump != trace.JumpOut && depth > 0 {
		if node, ok := s.AST["FunctionDefinition"]; ok && node.Name != "" {
			// A later JUMPDEST of the same definition is the real entry;
			// the earlier hit checks no breakpoints at all, line ones
			// included.
			if i.functionDefLookAhead(node.Name) {
				return nil
			}

			names := []string{
				node.Name,
				s.TraceStep.ContractName + "." + node.Name,
			}

			for _, name := range names {
				if _, ok := i.breakpoints[name]; ok {
					return &stopSignal{kind: stopBreakpoint}
				}
			}
		}
	}

	if s.TraceStep.Code.Known {
		changed := !prev.Valid() ||
			s.TraceStep.Code.UnitName != prev.TraceStep.Code.UnitName ||
			s.TraceStep.Code.LineIndex != prev.TraceStep.Code.LineIndex

		if changed {
			name := fmt.Sprintf("%s:%d", path.Base(s.TraceStep.Code.UnitName), 1+s.TraceStep.Code.LineIndex)
			if _, ok := i.breakpoints[name]; ok {
				return &stopSignal{kind: stopBreakpoint}
			}
		}
	}

	return nil
}

// functionDefLookAhead reports whether a later step within the window still
// maps to the same function definition and reaches a JUMPDEST with no frame
// push in between.
func (i *Interactive) functionDefLookAhead(name string) bool {
	pushFound := false

	for offset := 1; offset < i.core.windowSize; offset++ {
		s := i.core.GetStep(offset)

		if s.Event.Kind == trace.EventPush {
			pushFound = true
		}

		if !s.Valid() {
			return false
		}

		node, ok := s.AST["FunctionDefinition"]
		if !ok || node.Name != name {
			return false
		}

		if strings.ToUpper(s.TraceStep.Op) == "JUMPDEST" && !pushFound {
			return true
		}
	}

	return false
}

func sameSource(a, b *trace.TraceStep) bool {
	if a.File == -1 && b.File == -1 {
		return true
	}

	return a.Start == b.Start && a.Length == b.Length && a.File == b.File
}

// stopResponse materializes the stop signal into a protocol response object.
func (i *Interactive) stopResponse(stop stopSignal) any {
	switch stop.kind {
	case stopBreakpoint:
		return BreakpointResponse{
			Type: "breakpoint",
			Code: i.formatCode(i.core.GetStep(0).TraceStep),
		}

	case stopRevert:
		return RevertResponse{
			Type: "revert",
			Code: i.formatCode(i.core.GetStep(0).TraceStep),
		}

	case stopTerminate:
		i.quit = true

		return EndResponse{Type: "end"}

	default:
		return i.stepResponse(stop.args)
	}
}

func (i *Interactive) stepResponse(args []string) StepResponse {
	s := i.core.GetStep(0)

	rsp := StepResponse{
		Type:           "step",
		Code:           i.formatCode(s.TraceStep),
		AssignedValues: []ValueObject{},
		ReturnValues:   []ValueObject{},
	}

	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		rsp.AssignedValues = append(rsp.AssignedValues, s.Values[name].Object())
	}

	for _, arg := range args {
		if arg == "return" {
			rsp.IsReturn = true

			if frames := i.core.Frames(); len(frames) > 0 {
				for _, v := range frames[0].ReturnValues {
					rsp.ReturnValues = append(rsp.ReturnValues, v.Object())
				}
			}
		}
	}

	if len(args) >= 2 && args[0] == "warning" {
		rsp.Warnings = args[1:]
	}

	return rsp
}

// --- inspection commands ---

func (i *Interactive) frameValues(frameIndex int) (map[string]*Value, bool) {
	frames := i.core.Frames()
	if frameIndex < 0 || frameIndex >= len(frames) {
		return nil, false
	}

	out := map[string]*Value{}

	for name, v := range frames[frameIndex].Locals {
		out[name] = v
	}

	for name, v := range i.core.GetStep(0).Values {
		out[name] = v
	}

	return out, true
}

func (i *Interactive) cmdPrint(args []string) (any, error) {
	if len(args) < 1 {
		return nil, errSyntax
	}

	rsp := PrintResponse{
		Type:         "print",
		FrameIndex:   i.currentFrame,
		VariableName: args[0],
	}

	if values, ok := i.frameValues(i.currentFrame); ok {
		rsp.FrameFound = true

		if v, ok := values[args[0]]; ok {
			rsp.VariableFound = true
			obj := v.Object()
			rsp.Variable = &obj
		}
	}

	return rsp, nil
}

func (i *Interactive) cmdInfoLocals([]string) (any, error) {
	rsp := InfoLocalsResponse{
		Type:       "info_locals",
		FrameIndex: i.currentFrame,
		Variables:  []ValueObject{},
	}

	if values, ok := i.frameValues(i.currentFrame); ok {
		rsp.FrameFound = true

		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			rsp.Variables = append(rsp.Variables, values[name].Object())
		}
	}

	return rsp, nil
}

func (i *Interactive) cmdInfoArgs([]string) (any, error) {
	rsp := InfoArgsResponse{
		Type:       "info_args",
		FrameIndex: i.currentFrame,
	}

	frames := i.core.Frames()
	if i.currentFrame >= 0 && i.currentFrame < len(frames) {
		rsp.FrameFound = true

		if fn := frames[i.currentFrame].Function; fn != nil {
			rsp.FunctionFound = true
			obj := fn.Object()
			rsp.Function = &obj
		}
	}

	return rsp, nil
}

func (i *Interactive) cmdInfoBreakpoints([]string) (any, error) {
	names := make([]string, 0, len(i.breakpoints))
	for name := range i.breakpoints {
		names = append(names, name)
	}

	sort.Strings(names)

	return InfoBreakpointsResponse{Type: "info_breakpoints", Breakpoints: names}, nil
}

func (i *Interactive) cmdBreak(args []string) (any, error) {
	if len(args) < 1 {
		return nil, errSyntax
	}

	i.breakpoints[args[0]] = struct{}{}

	return BreakResponse{Type: "break", BreakpointName: args[0]}, nil
}

func (i *Interactive) cmdDelete(args []string) (any, error) {
	if len(args) < 1 {
		return nil, errSyntax
	}

	rsp := DeleteResponse{Type: "delete", BreakpointName: args[0]}

	if _, ok := i.breakpoints[args[0]]; ok {
		delete(i.breakpoints, args[0])

		rsp.BreakpointFound = true
	}

	return rsp, nil
}

func (i *Interactive) cmdFrame(args []string) (any, error) {
	if len(args) < 1 {
		return nil, errSyntax
	}

	index, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, errSyntax
	}

	i.currentFrame = index

	rsp := FrameResponse{Type: "frame", FrameIndex: index}

	frames := i.core.Frames()
	if index >= 0 && index < len(frames) {
		rsp.FrameFound = true
		rsp.Code = i.formatCode(frames[index].Cur)
	}

	return rsp, nil
}

func (i *Interactive) cmdBacktrace([]string) (any, error) {
	rsp := BacktraceResponse{Type: "backtrace", Frames: []BacktraceFrame{}}

	for index, f := range i.core.Frames() {
		bf := BacktraceFrame{Index: index}

		switch {
		case f.Function != nil:
			bf.FunctionFound = true
			obj := f.Function.Object()
			bf.Function = &obj
			bf.Description = f.Function.String()
		case f.Prev != nil && f.Cur != nil:
			prevLine := sourceLines(f.Prev, true, 0, 0)
			curLine := sourceLines(f.Cur, true, 0, 0)
			bf.Description = fmt.Sprintf("[ %s => %s ]", prevLine, curLine)
		default:
			bf.Description = "?"
		}

		rsp.Frames = append(rsp.Frames, bf)
	}

	return rsp, nil
}

func (i *Interactive) cmdList([]string) (any, error) {
	return ListResponse{
		Type: "list",
		Code: i.formatCode(i.core.GetStep(0).TraceStep),
	}, nil
}

func (i *Interactive) cmdQuit([]string) (any, error) {
	i.quit = true

	return QuitResponse{Type: "quit"}, nil
}
