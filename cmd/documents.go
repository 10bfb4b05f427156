/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
)

var listDocumentsCmd = &cobra.Command{
	Use:   "list-documents",
	Short: "List the documents of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		session, err := service.NewSession(userID)
		if err != nil {
			return err
		}
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.docs.ListDocuments(cmd.Context(), session)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No documents available.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FILENAME\tCHUNKS\tUPLOADED\tHASH")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.Filename, d.ChunkCount, d.UploadedAt.Format(time.RFC3339), d.DocumentHash)
		}
		return w.Flush()
	},
}

var deleteDocumentCmd = &cobra.Command{
	Use:   "delete-document",
	Short: "Delete a document by filename or content hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		filename, _ := cmd.Flags().GetString("file")
		hash, _ := cmd.Flags().GetString("hash")
		if (filename == "") == (hash == "") {
			return errors.New("exactly one of --file and --hash is required")
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

		var res *types.DeleteResult
		if filename != "" {
			res = a.docs.DeleteDocument(cmd.Context(), session, filename)
		} else {
			res = a.docs.DeleteDocumentByHash(cmd.Context(), session, hash)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		if res.Status != types.DeleteStatusSuccess {
			return fmt.Errorf("delete %s", res.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listDocumentsCmd)
	listDocumentsCmd.Flags().StringP("user", "u", "", "User id")

	rootCmd.AddCommand(deleteDocumentCmd)
	deleteDocumentCmd.Flags().StringP("user", "u", "", "User id")
	deleteDocumentCmd.Flags().StringP("file", "f", "", "Filename to delete")
	deleteDocumentCmd.Flags().String("hash", "", "Content hash of the document to delete")
}
