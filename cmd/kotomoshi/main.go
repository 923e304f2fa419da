package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/logger"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/shiftcli"
)

func main() {
	if err := shiftcli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, shiftcli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			shiftcli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		logger.Logger.Fatal(err)
	}
}
