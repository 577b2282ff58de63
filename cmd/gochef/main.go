package main

import (
	"fmt"
	"os"

	"github.com/me/gochef/internal/cli"
)

func main() {
	err := cli.NewRootCmd().Execute()
	if cerr := cli.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
