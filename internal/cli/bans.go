package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

func newBansCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bans",
		Short: "Matchmaking ban administration",
	}

	cmd.AddCommand(newBansAddCmd(s))
	cmd.AddCommand(newBansRevokeCmd(s))

	return cmd
}

var banHeader = []string{"ID", "PLAYER", "REASON", "ACTIVE", "EXPIRES"}

func banRow(b models.Ban) []string {
	expires := "never"
	if b.ExpiresAt != nil {
		expires = b.ExpiresAt.Format("2006-01-02 15:04:05")
	}
	return []string{b.ID, b.PlayerID, string(b.Reason), fmt.Sprint(b.Active), expires}
}

func newBansAddCmd(s *session) *cobra.Command {
	var (
		minutes int
		note    string
	)

	cmd := &cobra.Command{
		Use:   "add <player-id>",
		Short: "Ban a player from matchmaking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.CreateBanRequest{PlayerID: args[0], Note: note}
			if minutes > 0 {
				req.DurationMinutes = &minutes
			}

			var result struct {
				Ban models.Ban `json:"ban"`
			}
			if err := s.client.Post("/api/v1/admin/bans", req, &result); err != nil {
				return err
			}

			return s.out(cmd).Print(result, banHeader, [][]string{banRow(result.Ban)})
		},
	}

	cmd.Flags().IntVar(&minutes, "minutes", 0, "Ban length; omit for a permanent ban")
	cmd.Flags().StringVar(&note, "note", "", "Note stored with the ban")

	return cmd
}

func newBansRevokeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <ban-id>",
		Short: "Lift a ban early",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Status string     `json:"status"`
				Ban    models.Ban `json:"ban"`
			}
			path := fmt.Sprintf("/api/v1/admin/bans/%s/revoke", url.PathEscape(args[0]))
			if err := s.client.Post(path, nil, &result); err != nil {
				return err
			}

			if result.Status == "already_processed" {
				return s.out(cmd).PrintMessage("ban already inactive")
			}
			return s.out(cmd).Print(result, banHeader, [][]string{banRow(result.Ban)})
		},
	}
}
