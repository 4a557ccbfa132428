package main

import "github.com/ethpandaops/tracedbg/cmd"

func main() {
	cmd.Execute()
}
