/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/service"
	"github.com/tieubaoca/edu-assistant/types"
	"github.com/tieubaoca/edu-assistant/utils"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask a question about a user's documents",
	Long: `Answers the question with the configured chat model, which searches the
user's documents before responding. With --context only the ranked passages
are printed and no model is called.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		question, _ := cmd.Flags().GetString("question")
		document, _ := cmd.Flags().GetString("document")
		contextOnly, _ := cmd.Flags().GetBool("context")
		if question == "" {
			return errors.New("--question is required")
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

		out := cmd.OutOrStdout()
		if contextOnly {
			passages := a.docs.GetContext(cmd.Context(), session, question, document)
			if len(passages) == 0 {
				fmt.Fprintln(out, service.NoPassagesFound)
				return nil
			}
			fmt.Fprintln(out, service.FormatPassages(passages))
			return nil
		}

		openAIKey, _ := cmd.Flags().GetString("openai-key")
		assistant, err := a.sessions.Get(session.UserID, service.Credentials{OpenAIKey: openAIKey})
		if err != nil {
			return err
		}
		err = assistant.Chat.ChatStream(cmd.Context(), []types.Message{{Role: "user", Content: question}}, func(delta string) {
			fmt.Fprint(out, delta)
		})
		fmt.Fprintln(out)
		return err
	},
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue an API token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		username, _ := cmd.Flags().GetString("username")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		session, err := service.NewSession(userID)
		if err != nil {
			return err
		}
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}

		if ttl <= 0 {
			ttl = cfg.JWT.TTL
		}
		token, err := utils.GenerateUserToken(session.UserID, username, cfg.JWT.Secret, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringP("user", "u", "", "User id")
	askCmd.Flags().StringP("question", "q", "", "Question to answer")
	askCmd.Flags().StringP("document", "d", "", "Restrict retrieval to this filename")
	askCmd.Flags().Bool("context", false, "Print the retrieved passages only")
	askCmd.Flags().String("openai-key", "", "OpenAI API key of the user (default from config)")

	rootCmd.AddCommand(issueTokenCmd)
	issueTokenCmd.Flags().StringP("user", "u", "", "User id")
	issueTokenCmd.Flags().String("username", "", "Display name stored in the token")
	issueTokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default from config)")
}
