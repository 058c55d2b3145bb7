package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCleanupCommand(opts *globalOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired access and refresh tokens",
		Long: `Delete access and refresh tokens that expired more than --older-than ago.

Expired tokens are never accepted, so this only reclaims space.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, cancel := commandContext()
			defer cancel()

			deleted, err := rt.auth.CleanupExpiredTokens(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired tokens\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only delete tokens that expired at least this long ago")
	return cmd
}
