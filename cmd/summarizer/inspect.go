package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/pdfsummarizer/internal/config"
	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
	pdfutil "github.com/dharsanguruparan/pdfsummarizer/internal/pdf"
)

func newInspectCmd() *cobra.Command {
	var withText bool
	cmd := &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "Print name, size, and page count of a PDF without uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			doc, err := model.NewFileDocument(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			data, err := pdfutil.ReadAll(f, cfg.MaxFileSize)
			if err != nil {
				return err
			}
			info, err := pdfutil.Inspect(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:  %s\nsize:  %s\npages: %d\n", doc.Name, doc.SizeMB(), info.Pages)
			if !withText {
				return nil
			}
			text, err := pdfutil.ExtractText(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s", text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withText, "text", false, "Also print the extracted text")
	return cmd
}
