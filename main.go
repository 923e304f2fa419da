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
			fmt.Fprintln(os.Stderr, "usage: kotomoshi setup --identity-secret <secret> --admin-email <email> [--force]")
			fmt.Fprintln(os.Stderr, "       kotomoshi serve [--addr :8080]")
			fmt.Fprintln(os.Stderr, "       kotomoshi render|send webhook|send sheet <year> <month>")
			fmt.Fprintln(os.Stderr, "       kotomoshi import-users <roster.xlsx>")
			os.Exit(2)
		}
		logger.Logger.Fatal(err)
	}
}
