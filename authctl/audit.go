package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCommand(opts *globalOptions) *cobra.Command {
	var (
		userID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent authentication events",
		Long:  "Show the most recent entries in the authentication audit log (optionally filtered by user)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, cancel := commandContext()
			defer cancel()

			logs, err := rt.uow.Repositories().Audit.ListRecent(ctx, userID, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tUSER\tSUCCESS\tDETAIL")
			for _, log := range logs {
				user := "-"
				if log.UserID != nil {
					user = *log.UserID
				}
				detail := ""
				if log.ErrorMsg != nil {
					detail = *log.ErrorMsg
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
					log.CreatedAt.Format(time.RFC3339), log.Action, user, !log.IsFailure(), detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "Filter by user ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	return cmd
}
