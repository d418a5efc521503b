package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"renderqa/internal/cli"
)

// main resolves the working directory once and hands everything else to cli.Run.
// SIGINT/SIGTERM cancel the run; an in-flight renderer is killed with its group.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternalError)
	}

	result, err := cli.Run(ctx, os.Args[1:], wd, cli.Options{Stdout: os.Stdout, Stderr: os.Stderr})
	if err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	stop()
	os.Exit(result.ExitCode)
}
