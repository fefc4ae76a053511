package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/pdfsummarizer/internal/config"
	"github.com/dharsanguruparan/pdfsummarizer/internal/encoder"
	"github.com/dharsanguruparan/pdfsummarizer/internal/logging"
	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
	"github.com/dharsanguruparan/pdfsummarizer/internal/processing"
	"github.com/dharsanguruparan/pdfsummarizer/internal/remote"
	"github.com/dharsanguruparan/pdfsummarizer/internal/render"
	"github.com/dharsanguruparan/pdfsummarizer/internal/reveal"
	"github.com/dharsanguruparan/pdfsummarizer/internal/session"
	"github.com/dharsanguruparan/pdfsummarizer/internal/storage"
	"github.com/dharsanguruparan/pdfsummarizer/internal/validate"
)

type summarizeOptions struct {
	endpoint string
	interval time.Duration
	timeout  time.Duration
	jsonOut  bool
}

type jsonResult struct {
	Success bool   `json:"success,omitempty"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newSummarizeCmd() *cobra.Command {
	var opts summarizeOptions
	cmd := &cobra.Command{
		Use:   "summarize <file.pdf>",
		Short: "Summarize a PDF with the remote service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("endpoint") {
				cfg.Endpoint = opts.endpoint
			}
			if cmd.Flags().Changed("interval") {
				cfg.RevealInterval = opts.interval
			}
			if cmd.Flags().Changed("timeout") {
				cfg.RequestTimeout = opts.timeout
			}
			return runSummarize(cmd, cfg, args[0], opts.jsonOut)
		},
	}
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Summarization endpoint (overrides SUMMARIZER_ENDPOINT)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 15*time.Millisecond, "Delay between revealed characters")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "Remote request timeout")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print a JSON result instead of revealing the summary")
	return cmd
}

func runSummarize(cmd *cobra.Command, cfg *config.Config, path string, jsonOut bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	log, err := logging.NewWithOutput(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	if os.Getenv(config.Prefix+"_LOG_LEVEL") == "" {
		log.SetLevel(logrus.WarnLevel)
	}

	doc, err := model.NewFileDocument(path)
	if err != nil {
		return report(out, jsonOut, fmt.Sprintf("PDF file not found: %s", path))
	}

	processor := processing.New(encoder.New(cfg.MaxFileSize), remote.New(cfg.Endpoint, cfg.RequestTimeout), 1, 1, log, nil)
	processor.Start(ctx)
	ctrl := session.New(
		validate.New(cfg.AcceptedType, cfg.AcceptedExtension),
		processor,
		reveal.New(cfg.RevealInterval),
		session.Options{Journal: storage.NewMemoryStore(), Logger: log},
	)
	defer ctrl.Close()

	if !jsonOut {
		fmt.Fprintf(out, "%s (%s)\n", doc.Name, doc.SizeMB())
	}
	if _, err := ctrl.Select(ctx, doc); err != nil {
		var invalid *validate.ValidationError
		if errors.As(err, &invalid) {
			return report(out, jsonOut, ctrl.Snapshot().Error)
		}
		return err
	}
	if !jsonOut {
		fmt.Fprintln(out, "Analyzing document...")
	}

	snap, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}
	if snap.Phase != model.PhaseSucceeded {
		if rec, ok := ctrl.Record(); ok {
			log.WithField("detail", rec.Detail).Debug("summarization failed")
		}
		return report(out, jsonOut, snap.Error)
	}

	if jsonOut {
		return json.NewEncoder(out).Encode(jsonResult{Success: true, Data: snap.Summary})
	}
	fmt.Fprintln(out)
	frames, cancel := ctrl.Frames()
	defer cancel()
	if err := render.Stream(ctx, out, frames, render.Options{Accept: ctrl.ShowsSummary}); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return nil
}

// report prints msg in the selected format and returns errReported.
func report(w io.Writer, jsonOut bool, msg string) error {
	if jsonOut {
		_ = json.NewEncoder(w).Encode(jsonResult{Error: msg})
	} else {
		fmt.Fprintln(w, msg)
	}
	return errReported
}
