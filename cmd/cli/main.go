package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/gridloop/internal/app"
	"github.com/vk/gridloop/internal/cli"
	"github.com/vk/gridloop/internal/run"
)

// main is the entrypoint for the gridloop application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := realMain(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// realMain encapsulates the main application logic for easier testing and
// error handling.
func realMain(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	gridloopApp, err := app.NewApp(outW, appConfig)
	if err != nil {
		return err
	}

	result, err := gridloopApp.Run(context.Background(), nil)
	if err != nil {
		return err
	}
	if result.Status != run.StatusSuccess {
		return &cli.ExitError{Code: 3, Message: fmt.Sprintf("workflow finished with status %s", result.Status)}
	}
	return nil
}
