package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/server"
)

func newUsersCmd() *cobra.Command {
	var flags storageFlags

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user directory",
	}
	flags.register(cmd)

	var reg access.Registration
	registerCmd := &cobra.Command{
		Use:   "register USERNAME",
		Short: "Register a user with open access and no grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg.Username = args[0]
			return withAdminContext(cmd, &flags, func(ctx context.Context, sc *server.ServerContext) error {
				acct, err := sc.Directory().Register(ctx, reg)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), acct)
			})
		},
	}
	registerCmd.Flags().StringVar(&reg.Name, "name", "", "Display name")
	registerCmd.Flags().StringVar(&reg.Email, "email", "", "Email address")

	getCmd := &cobra.Command{
		Use:   "get USERNAME",
		Short: "Look up a registered user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminContext(cmd, &flags, func(ctx context.Context, sc *server.ServerContext) error {
				acct, err := sc.Directory().LookupAccount(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), acct)
			})
		},
	}

	var limit int
	searchCmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search users by username prefix or glob pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminContext(cmd, &flags, func(ctx context.Context, sc *server.ServerContext) error {
				accounts, err := sc.Directory().SearchAccounts(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), accounts)
			})
		},
	}
	searchCmd.Flags().IntVar(&limit, "limit", access.DefaultSearchLimit, "Maximum number of results")

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminContext(cmd, &flags, func(ctx context.Context, sc *server.ServerContext) error {
				n, err := sc.Directory().CountAccounts(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"count": n})
			})
		},
	}

	grantedCmd := &cobra.Command{
		Use:   "granted USERNAME",
		Short: "List the owners whose assistants a user may chat with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminContext(cmd, &flags, func(ctx context.Context, sc *server.ServerContext) error {
				owners, err := sc.Service().ListGrantingOwners(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), owners)
			})
		},
	}

	cmd.AddCommand(registerCmd, getCmd, searchCmd, countCmd, grantedCmd)
	return cmd
}
