package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pario-ai/lens/pkg/models"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		req      models.AnalyzeRequest
		textFile string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one article, serving from cache when fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, textFile)
			if err != nil {
				return err
			}
			req.Text = text

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			resp, err := a.orch.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&req.URL, "url", "", "article URL (cache key)")
	cmd.Flags().StringVar(&req.Title, "title", "", "article title")
	cmd.Flags().StringVar(&req.Author, "author", "", "article author")
	cmd.Flags().StringVar(&req.Source, "source", "", "publication name")
	cmd.Flags().StringVarP(&textFile, "file", "f", "-", "file with the article text, - for stdin")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func readText(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read article text: %w", err)
	}
	return string(b), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
