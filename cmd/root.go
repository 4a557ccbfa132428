package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/config"
	"github.com/ethpandaops/tracedbg/pkg/debugger"
	"github.com/ethpandaops/tracedbg/pkg/ethereum/execution"
	"github.com/ethpandaops/tracedbg/pkg/trace"
)

var (
	log            = logrus.New()
	sessionCfgFile string
)

// rootCmd starts an interactive debugging session for one transaction.
var rootCmd = &cobra.Command{
	Use:   "tracedbg <txhash>",
	Short: "Source-level debugger for EVM transaction traces.",
	Long: `Reconstructs call frames, local variables and breakpoints for an EVM
transaction from its raw instruction trace and compiler artifacts, then
drops into a gdb-style interactive session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), args[0])
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionCfgFile, "config", "", "config file (default is ./config.yaml)")
}

func runSession(ctx context.Context, txhash string) error {
	cfg, err := loadConfigFromFile(sessionCfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LoggingLevel)
	if err != nil {
		log.WithError(err).Warn("Invalid logging level, using info")

		level = logrus.InfoLevel
	}

	log.SetLevel(level)

	if cfg.MetricsAddr != nil {
		go serveMetrics(*cfg.MetricsAddr)
	}

	session, err := newSession(ctx, cfg, txhash)
	if err != nil {
		return err
	}

	return runREPL(session)
}

func loadConfigFromFile(file string) (*config.Config, error) {
	if file == "" {
		file = "config.yaml"
	}

	cfg := &config.Config{}

	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	type plain config.Config

	if err := yaml.Unmarshal(yamlFile, (*plain)(cfg)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server failed")
	}
}

// newSession wires the full pipeline: node, artifacts, identity scan, trace
// decoder, debug core, interactive protocol.
func newSession(ctx context.Context, cfg *config.Config, txhash string) (*debugger.Interactive, error) {
	node := execution.NewNode(log, cfg.Execution)

	if err := node.Start(ctx); err != nil {
		return nil, err
	}

	if err := node.WaitUntilReady(ctx, cfg.NodeReadyTimeout); err != nil {
		return nil, err
	}

	artifacts := artifact.NewList()
	if err := artifacts.LoadDirectory(cfg.ArtifactsDir); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"dir":       cfg.ArtifactsDir,
		"contracts": artifacts.Len(),
	}).Info("Loaded contract artifacts")

	astIndex, err := artifact.BuildSourceIndex(artifacts)
	if err != nil {
		return nil, err
	}

	identifier := trace.NewContractIdentifier(log)
	if err := identifier.ScanChain(ctx, node, artifacts); err != nil {
		return nil, err
	}

	decoder := trace.NewDecoder(log, node, artifacts, identifier)

	core, err := debugger.NewCore(ctx, log, decoder, astIndex, txhash, cfg.WindowSize)
	if err != nil {
		return nil, err
	}

	return debugger.NewInteractive(log, core, debugger.Options{
		CodeLinesBefore: cfg.CodeLinesBefore,
		CodeLinesAfter:  cfg.CodeLinesAfter,
	}), nil
}

// runREPL reads commands from stdin, dispatches them over the protocol and
// renders responses. It is a thin front-end: every operation goes through the
// same Request/Response objects any other caller would use.
func runREPL(session *debugger.Interactive) error {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print("(tracedbg) ")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("(tracedbg) ")

			continue
		}

		req := expandAlias(debugger.Request{Command: fields[0], Args: fields[1:]})

		rsp := session.Call(req)
		if rsp.Status == debugger.StatusQuit {
			return nil
		}

		renderResponse(rsp)

		fmt.Print("(tracedbg) ")
	}

	return scanner.Err()
}

// expandAlias maps gdb-style shorthand onto protocol commands.
func expandAlias(req debugger.Request) debugger.Request {
	switch req.Command {
	case "c":
		req.Command = "continue"
	case "s":
		req.Command = "step"
	case "si":
		req.Command = "stepi"
	case "n":
		req.Command = "next"
	case "fin":
		req.Command = "finish"
	case "p":
		req.Command = "print"
	case "bt":
		req.Command = "backtrace"
	case "b":
		req.Command = "break"
	case "q":
		req.Command = "quit"
	case "info":
		// "info locals" etc. arrive as two words.
		if len(req.Args) > 0 {
			req.Command = "info_" + req.Args[0]
			req.Args = req.Args[1:]
		}
	}

	return req
}

func renderResponse(rsp debugger.Response) {
	if rsp.Status == debugger.StatusError {
		fmt.Printf("error: %s: %s\n", rsp.What.Name, rsp.What.Message)

		return
	}

	switch r := rsp.Response.(type) {
	case debugger.StepResponse:
		renderCode(r.Code)

		for _, v := range r.AssignedValues {
			fmt.Println(v.String)
		}

		if r.IsReturn {
			for _, v := range r.ReturnValues {
				fmt.Printf("return %s\n", v.String)
			}
		}

		for _, w := range r.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
	case debugger.BreakpointResponse:
		fmt.Println("breakpoint hit")
		renderCode(r.Code)
	case debugger.RevertResponse:
		fmt.Println("revert")
		renderCode(r.Code)
	case debugger.EndResponse:
		fmt.Println("program terminated")
	case debugger.ListResponse:
		renderCode(r.Code)
	case debugger.FrameResponse:
		if !r.FrameFound {
			fmt.Printf("no frame %d\n", r.FrameIndex)

			return
		}

		renderCode(r.Code)
	case debugger.PrintResponse:
		switch {
		case !r.FrameFound:
			fmt.Printf("no frame %d\n", r.FrameIndex)
		case !r.VariableFound:
			fmt.Printf("no variable named %q\n", r.VariableName)
		default:
			fmt.Println(r.Variable.String)
		}
	case debugger.InfoLocalsResponse:
		for _, v := range r.Variables {
			fmt.Println(v.String)
		}
	case debugger.InfoArgsResponse:
		if r.FunctionFound {
			fmt.Println(r.Function.String)
		}
	case debugger.InfoBreakpointsResponse:
		for _, name := range r.Breakpoints {
			fmt.Println(name)
		}
	case debugger.BacktraceResponse:
		for _, f := range r.Frames {
			fmt.Printf("#%d %s\n", f.Index, f.Description)
		}
	case debugger.BreakResponse:
		fmt.Printf("breakpoint set: %s\n", r.BreakpointName)
	case debugger.DeleteResponse:
		if r.BreakpointFound {
			fmt.Printf("breakpoint deleted: %s\n", r.BreakpointName)
		} else {
			fmt.Printf("no breakpoint named %q\n", r.BreakpointName)
		}
	default:
		// Anything unhandled renders as JSON.
		if data, err := json.Marshal(rsp.Response); err == nil {
			fmt.Println(string(data))
		}
	}
}

func renderCode(code *debugger.CodeObject) {
	if code == nil {
		return
	}

	if code.Path != nil {
		fmt.Printf("%s:%d\n", *code.Path, code.LineIndex+1)
	}

	fmt.Println(code.Text)
}
