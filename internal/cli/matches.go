package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

func newMatchesCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Match administration",
	}

	cmd.AddCommand(newMatchesListCmd(s))
	cmd.AddCommand(newMatchesFormCmd(s))
	cmd.AddCommand(newMatchesCancelCmd(s))

	return cmd
}

var matchHeader = []string{"ID", "STATUS", "PLAYERS", "MAP", "SERVER", "UPDATED"}

func matchRow(m models.Match) []string {
	return []string{
		m.ID,
		string(m.Status),
		strconv.Itoa(len(m.Players)),
		deref(m.Map),
		deref(m.ServerAddress),
		m.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func newMatchesListCmd(s *session) *cobra.Command {
	var stuck bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/admin/matches"
			if stuck {
				path += "?" + url.Values{"stuck": {"true"}}.Encode()
			}

			var result struct {
				Matches []models.Match `json:"matches"`
				Total   int            `json:"total"`
			}
			if err := s.client.Get(path, &result); err != nil {
				return err
			}

			rows := make([][]string, 0, len(result.Matches))
			for _, m := range result.Matches {
				rows = append(rows, matchRow(m))
			}
			return s.out(cmd).Print(result, matchHeader, rows)
		},
	}

	cmd.Flags().BoolVar(&stuck, "stuck", false, "Only matches that have not progressed recently")

	return cmd
}

func newMatchesFormCmd(s *session) *cobra.Command {
	var fillBots bool

	cmd := &cobra.Command{
		Use:   "form",
		Short: "Form a match now from whoever is queued",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Match models.Match `json:"match"`
			}
			if err := s.client.Post("/api/v1/admin/matches/form", models.FormMatchRequest{FillBots: fillBots}, &result); err != nil {
				return err
			}

			return s.out(cmd).Print(result, matchHeader, [][]string{matchRow(result.Match)})
		},
	}

	cmd.Flags().BoolVar(&fillBots, "fill-bots", false, "Pad the match with bots")

	return cmd
}

func newMatchesCancelCmd(s *session) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <match-id>",
		Short: "Cancel a match and free its server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Status string       `json:"status"`
				Match  models.Match `json:"match"`
			}
			path := fmt.Sprintf("/api/v1/admin/matches/%s/cancel", url.PathEscape(args[0]))
			if err := s.client.Post(path, models.CancelRequest{Reason: reason}, &result); err != nil {
				return err
			}

			if result.Status == "already_processed" {
				return s.out(cmd).PrintMessage("match already finished")
			}
			return s.out(cmd).Print(result, matchHeader, [][]string{matchRow(result.Match)})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Detail recorded with the cancellation")

	return cmd
}
