// Command chronos runs synthetic workloads on a tick-synchronized scheduler.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/chronos/chronos/cmd"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
