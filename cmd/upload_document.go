/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/edu-assistant/handler"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
	"github.com/tieubaoca/edu-assistant/utils"
)

// uploadDocumentCmd represents the uploadDocument command
var uploadDocumentCmd = &cobra.Command{
	Use:   "upload-document",
	Short: "Ingest one document into a user's library",
	Long: `Extracts, chunks and embeds a PDF, text or markdown file and stores it
in the library of the given user. Re-uploading identical content is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		filePath, _ := cmd.Flags().GetString("file")
		if filePath == "" {
			return errors.New("--file is required")
		}
		session, err := service.NewSession(userID)
		if err != nil {
			return err
		}

		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := upload(cmd.Context(), a.docs, session, filePath, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if res.Status == types.ProcessStatusStorageFailed {
			return fmt.Errorf("failed to store %s", res.Filename)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadDocumentCmd)
	uploadDocumentCmd.Flags().StringP("user", "u", "", "User id owning the document")
	uploadDocumentCmd.Flags().StringP("file", "f", "", "Path to the file to upload")
}

func upload(ctx context.Context, docs *service.DocumentService, session service.Session, filePath string, out io.Writer) (*types.ProcessResult, error) {
	data, err := utils.ReadFileLimited(filePath, handler.DefaultMaxUploadSize)
	if err != nil {
		return nil, err
	}
	res, err := docs.ProcessDocumentWithProgress(ctx, session, filepath.Base(filePath), data, func(p types.UploadProgress) {
		if p.Stage == types.UploadStageEmbedding && p.Total > 0 {
			fmt.Fprintf(out, "\rEmbedding %s: %d/%d", filepath.Base(filePath), p.Done, p.Total)
			if p.Done == p.Total {
				fmt.Fprintln(out)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "%s: %s (%d/%d chunks)\n", res.Filename, res.Status, res.ChunksStored, res.ChunksTotal)
	if res.Message != "" {
		fmt.Fprintln(out, res.Message)
	}
	for _, hint := range res.Hints {
		fmt.Fprintln(out, "hint:", hint)
	}
	return res, nil
}
