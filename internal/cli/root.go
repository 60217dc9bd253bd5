package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// session is shared by every subcommand once flags are parsed.
type session struct {
	cfg    *Config
	client *Client
}

func (s *session) out(cmd *cobra.Command) *Output {
	return NewOutput(cmd.OutOrStdout(), s.cfg.Output)
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	s := &session{cfg: DefaultConfig()}

	rootCmd := &cobra.Command{
		Use:   "matchctl",
		Short: "Operate the ranked match orchestrator",
		Long: `matchctl drives the orchestrator's administrative API.

It can force match formation, cancel or list matches, register and release
hosting instances, and issue or revoke bans. Calls require a session token
whose player holds the matching capability.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := s.cfg.LoadToken(); err != nil {
				return err
			}
			s.client = NewClient(s.cfg.ServerURL, s.cfg.Token)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&s.cfg.ServerURL, "server", s.cfg.ServerURL, "Orchestrator URL (env: MATCHCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&s.cfg.Token, "token", s.cfg.Token, "Session token (env: MATCHCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&s.cfg.TokenFile, "token-file", s.cfg.TokenFile, "Token file path (env: MATCHCTL_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&s.cfg.Output, "output", "o", s.cfg.Output, "Output format: text, json")

	rootCmd.AddCommand(newHealthCmd(s))
	rootCmd.AddCommand(newMatchesCmd(s))
	rootCmd.AddCommand(newServersCmd(s))
	rootCmd.AddCommand(newBansCmd(s))
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
