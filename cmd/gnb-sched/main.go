// Command gnb-sched runs the gNB MAC scheduler against a scenario file,
// either as a batch simulation or as a long-running service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
