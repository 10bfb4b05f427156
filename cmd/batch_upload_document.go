/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

var supportedExtensions = map[string]bool{".pdf": true, ".txt": true, ".md": true}

// batchUploadDocumentCmd represents the batchUploadDocument command
var batchUploadDocumentCmd = &cobra.Command{
	Use:   "batch-upload-document",
	Short: "Ingest every document of a directory",
	Long: `Uploads each PDF, text and markdown file directly inside the directory
into the user's library. A failing file is reported and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		directory, _ := cmd.Flags().GetString("directory")
		if directory == "" {
			return errors.New("--directory is required")
		}
		session, err := service.NewSession(userID)
		if err != nil {
			return err
		}

		files, err := os.ReadDir(directory)
		if err != nil {
			return fmt.Errorf("failed to read directory: %w", err)
		}

		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		var stored, skipped, failed int
		for _, file := range files {
			if file.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
				continue
			}
			filePath := filepath.Join(directory, file.Name())
			res, err := upload(cmd.Context(), a.docs, session, filePath, out)
			switch {
			case err != nil:
				a.logger.Error("failed to upload document", zap.String("file", filePath), zap.Error(err))
				failed++
			case res.Status == types.ProcessStatusStored:
				stored++
			case res.Status == types.ProcessStatusAlreadyExists:
				skipped++
			default:
				failed++
			}
		}
		fmt.Fprintf(out, "stored %d, already present %d, failed %d\n", stored, skipped, failed)
		if failed > 0 {
			return fmt.Errorf("%d documents failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchUploadDocumentCmd)
	batchUploadDocumentCmd.Flags().StringP("user", "u", "", "User id owning the documents")
	batchUploadDocumentCmd.Flags().String("directory", "", "Path to the dir to upload")
}
