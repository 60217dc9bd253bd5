package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	jwtutil "github.com/rl-arena/ranked-orchestrator/pkg/jwt"
)

// newTokenCmd mints a session token locally. It is meant for development
// setups where no identity provider is running.
func newTokenCmd() *cobra.Command {
	var (
		secret string
		player string
		name   string
		roles  []string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			if name == "" {
				name = player
			}

			token, err := jwtutil.NewJWTManager(secret, ttl).Generate(player, name, nil, roles)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret shared with the orchestrator")
	cmd.Flags().StringVar(&player, "player", "", "Player id")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the player id)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to embed; repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("player")

	return cmd
}
