package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/lens/pkg/models"
)

func newVideoCmd() *cobra.Command {
	var (
		req    models.ClipRequest
		output string
	)

	cmd := &cobra.Command{
		Use:   "video",
		Short: "Synthesize a short clip about an article and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			clip, err := a.orch.GenerateClip(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, clip.Payload, 0o644); err != nil {
				return fmt.Errorf("write clip: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes (%s) to %s\n", len(clip.Payload), clip.ContentType, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "article title")
	cmd.Flags().StringVar(&req.Excerpt, "excerpt", "", "key passage from the article")
	cmd.Flags().StringVar(&req.Rationale, "rationale", "", "analysis rationale to narrate")
	cmd.Flags().StringVarP(&output, "output", "o", "clip.mp4", "output file")
	return cmd
}
