package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

var (
	feedbackSession    string
	feedbackUserID     string
	feedbackOperation  string
	feedbackQuery      string
	feedbackAction     string
	feedbackFinal      string
	feedbackRelevance  float64
	feedbackHelpful    bool
	feedbackChosenJSON string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record user feedback on suggestions",
}

var feedbackRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Append one feedback event",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ev := model.FeedbackEvent{
			UserID:        feedbackUserID,
			SessionID:     feedbackSession,
			OperationType: feedbackOperation,
			Query:         feedbackQuery,
			UserAction:    model.UserAction(feedbackAction),
			FinalInput:    feedbackFinal,
		}
		if cmd.Flags().Changed("relevance") {
			ev.RelevanceScore = &feedbackRelevance
		}
		if cmd.Flags().Changed("helpful") {
			ev.WasHelpful = &feedbackHelpful
		}
		if feedbackChosenJSON != "" {
			var chosen model.CompletionSuggestion
			if err := json.Unmarshal([]byte(feedbackChosenJSON), &chosen); err != nil {
				return eris.Wrap(err, "feedback: parse --chosen")
			}
			ev.Chosen = &chosen
		}

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		created, err := env.Resolver.RecordFeedback(ctx, ev)
		if err != nil {
			return err
		}
		return printJSON(created)
	},
}

func init() {
	feedbackRecordCmd.Flags().StringVar(&feedbackSession, "session", "", "session id (required)")
	feedbackRecordCmd.Flags().StringVar(&feedbackUserID, "user", "", "user id")
	feedbackRecordCmd.Flags().StringVar(&feedbackOperation, "operation", model.OpComplete, "operation the feedback refers to")
	feedbackRecordCmd.Flags().StringVar(&feedbackQuery, "query", "", "the query the user typed (required)")
	feedbackRecordCmd.Flags().StringVar(&feedbackAction, "action", "", "selected, rejected, or modified (required)")
	feedbackRecordCmd.Flags().StringVar(&feedbackFinal, "final", "", "what the user ultimately entered")
	feedbackRecordCmd.Flags().Float64Var(&feedbackRelevance, "relevance", 0, "relevance score in [0,1]")
	feedbackRecordCmd.Flags().BoolVar(&feedbackHelpful, "helpful", false, "whether the suggestions helped")
	feedbackRecordCmd.Flags().StringVar(&feedbackChosenJSON, "chosen", "", "the chosen suggestion as JSON")
	feedbackCmd.AddCommand(feedbackRecordCmd)
	rootCmd.AddCommand(feedbackCmd)
}
