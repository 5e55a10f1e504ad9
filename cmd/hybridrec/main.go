package main

import (
	"fmt"
	"os"
)

// 退出码
const (
	ExitSuccess      = 0
	ExitError        = 1
	ExitNoCandidates = 3
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
