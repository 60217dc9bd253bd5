package cli

import (
	"github.com/spf13/cobra"
)

func newHealthCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check orchestrator health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Status  string `json:"status"`
				Service string `json:"service"`
			}
			if err := s.client.Get("/health", &result); err != nil {
				return err
			}

			return s.out(cmd).Print(result, []string{"SERVICE", "STATUS"}, [][]string{{result.Service, result.Status}})
		},
	}
}
