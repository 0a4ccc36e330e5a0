package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chatmate/chatmate/internal/server"
	"github.com/chatmate/chatmate/internal/tools/batch"
)

func newAccessCmd() *cobra.Command {
	var (
		flags storageFlags
		owner string
	)

	cmd := &cobra.Command{
		Use:   "access",
		Short: "Inspect and change an owner's access configuration",
		Long: `Inspect and change who may chat with an owner's assistant.

All subcommands act on the owner given with --owner and talk to the
configured storage backend directly.`,
	}
	flags.register(cmd)
	cmd.PersistentFlags().StringVar(&owner, "owner", "", "Username of the owner (required)")
	_ = cmd.MarkPersistentFlagRequired("owner")

	// run wraps an access subcommand body with the admin context.
	run := func(fn func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withAdminContext(cmd, &flags, func(ctx context.Context, sc *server.ServerContext) error {
				return fn(ctx, sc, cmd.OutOrStdout(), args)
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the access list, groups and restriction flag",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, _ []string) error {
				state, err := sc.Service().GetAccessState(ctx, owner)
				if err != nil {
					return err
				}
				return printJSON(out, state)
			}),
		},
		&cobra.Command{
			Use:   "check VISITOR",
			Short: "Check whether a visitor may chat with the owner's assistant",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				return printJSON(out, map[string]bool{"authorized": sc.Service().IsAuthorized(ctx, owner, args[0])})
			}),
		},
		&cobra.Command{
			Use:   "grant USERNAME...",
			Short: "Grant users individual access",
			Args:  cobra.MinimumNArgs(1),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				return printBatch(out, batch.Apply(ctx, args, func(ctx context.Context, u string) error {
					_, err := sc.Service().GrantIndividualAccess(ctx, owner, u)
					return err
				}))
			}),
		},
		&cobra.Command{
			Use:   "revoke USERNAME...",
			Short: "Remove users from the access list",
			Args:  cobra.MinimumNArgs(1),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				return printBatch(out, batch.Apply(ctx, args, func(ctx context.Context, u string) error {
					_, err := sc.Service().RevokeIndividualAccess(ctx, owner, u)
					return err
				}))
			}),
		},
		&cobra.Command{
			Use:       "restrict on|off",
			Short:     "Turn restricted mode on or off",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"on", "off"},
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				restricted, err := parseOnOff(args[0])
				if err != nil {
					return err
				}
				got, err := sc.Service().SetAccessRestricted(ctx, owner, restricted)
				if err != nil {
					return err
				}
				return printJSON(out, map[string]bool{"accessRestricted": got})
			}),
		},
		newAccessGroupCmd(&owner, run),
	)

	return cmd
}

type accessRunner = func(fn func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error) func(*cobra.Command, []string) error

func newAccessGroupCmd(owner *string, run accessRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups and group access",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create an empty group",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				groups, err := sc.Service().CreateGroup(ctx, *owner, args[0])
				if err != nil {
					return err
				}
				return printJSON(out, groups)
			}),
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a group",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				groups, err := sc.Service().DeleteGroup(ctx, *owner, args[0])
				if err != nil {
					return err
				}
				return printJSON(out, groups)
			}),
		},
		&cobra.Command{
			Use:   "add NAME USERNAME...",
			Short: "Add users to a group",
			Args:  cobra.MinimumNArgs(2),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				group := args[0]
				return printBatch(out, batch.Apply(ctx, args[1:], func(ctx context.Context, u string) error {
					_, err := sc.Service().AddUserToGroup(ctx, *owner, group, u)
					return err
				}))
			}),
		},
		&cobra.Command{
			Use:   "remove NAME USERNAME",
			Short: "Remove a user from a group",
			Args:  cobra.ExactArgs(2),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				group, err := sc.Service().RemoveUserFromGroup(ctx, *owner, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(out, group)
			}),
		},
		&cobra.Command{
			Use:   "grant NAME",
			Short: "Grant a group access",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				res, err := sc.Service().GrantGroupAccess(ctx, *owner, args[0])
				if err != nil {
					return err
				}
				return printJSON(out, res)
			}),
		},
		&cobra.Command{
			Use:   "revoke NAME",
			Short: "Revoke a group's access",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				res, err := sc.Service().RevokeGroupAccess(ctx, *owner, args[0])
				if err != nil {
					return err
				}
				return printJSON(out, res)
			}),
		},
		&cobra.Command{
			Use:   "sync NAME",
			Short: "Re-apply a granted group's membership to the access list",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, sc *server.ServerContext, out io.Writer, args []string) error {
				list, err := sc.Service().SyncAccessFromGroups(ctx, *owner, args[0])
				if err != nil {
					return err
				}
				return printJSON(out, map[string][]string{"accessList": list})
			}),
		},
	)

	return cmd
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printBatch prints the summary and fails the command when any user failed.
func printBatch(out io.Writer, s batch.Summary) error {
	if err := printJSON(out, s); err != nil {
		return err
	}
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d users failed", s.Failed, s.Total)
	}
	return nil
}
