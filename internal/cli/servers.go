package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

func newServersCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Hosting instance administration",
	}

	cmd.AddCommand(newServersListCmd(s))
	cmd.AddCommand(newServersAddCmd(s))
	cmd.AddCommand(newServersReleaseCmd(s))

	return cmd
}

var serverHeader = []string{"ID", "NAME", "ADDRESS", "STATUS", "MATCH"}

func serverRow(srv models.GameServer) []string {
	return []string{srv.ID, srv.Name, srv.Address, string(srv.Status), deref(srv.MatchID)}
}

func newServersListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered hosting instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Servers []models.GameServer `json:"servers"`
				Total   int                 `json:"total"`
			}
			if err := s.client.Get("/api/v1/admin/servers", &result); err != nil {
				return err
			}

			rows := make([][]string, 0, len(result.Servers))
			for _, srv := range result.Servers {
				rows = append(rows, serverRow(srv))
			}
			return s.out(cmd).Print(result, serverHeader, rows)
		},
	}
}

func newServersAddCmd(s *session) *cobra.Command {
	var req models.CreateServerRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a hosting instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Server models.GameServer `json:"server"`
			}
			if err := s.client.Post("/api/v1/admin/servers", req, &result); err != nil {
				return err
			}

			return s.out(cmd).Print(result, serverHeader, [][]string{serverRow(result.Server)})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Address, "address", "", "host:port of the game and remote console")
	cmd.Flags().StringVar(&req.RconPassword, "rcon-password", "", "Remote console password")
	cmd.Flags().StringVar(&req.CallbackKey, "callback-key", "", "Shared secret the instance reports with (16+ characters)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("rcon-password")
	_ = cmd.MarkFlagRequired("callback-key")

	return cmd
}

func newServersReleaseCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "release <server-id>",
		Short: "Free a hosting instance, cancelling any match it holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Server models.GameServer `json:"server"`
			}
			path := fmt.Sprintf("/api/v1/admin/servers/%s/release", url.PathEscape(args[0]))
			if err := s.client.Post(path, nil, &result); err != nil {
				return err
			}

			return s.out(cmd).Print(result, serverHeader, [][]string{serverRow(result.Server)})
		},
	}
}
