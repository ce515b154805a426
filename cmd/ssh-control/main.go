package main

import (
	"fmt"
	"os"
)

func main() {
	err := newRootCmd(os.Stdout, os.Stderr).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ssh-control: %v\n", err)
	}
	os.Exit(exitCodeFromErr(err))
}
