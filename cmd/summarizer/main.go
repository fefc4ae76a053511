package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// errReported marks failures whose message was already printed.
var errReported = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "summarizer: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarizer",
		Short: "PDF summarizer CLI",
		Long: `summarizer sends a PDF to the remote summarization service and prints the
summary as it is revealed. It can also inspect PDFs locally and launch the
server and archive worker binaries during development.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newSummarizeCmd(),
		newInspectCmd(),
		newTestCmd(),
		newRunCmd(),
	)
	return cmd
}
