package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tkrehbiel/blogfed/server"
	"github.com/tkrehbiel/blogfed/server/storage"
)

// withEngine opens the configured engine for one command.
func withEngine(run func(ctx context.Context, e *server.Engine, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := server.LoadConfig(configFile)
		if err != nil {
			return err
		}
		e, err := server.NewEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()
		return run(cmd.Context(), e, args)
	}
}

func printItem(item *storage.OutboxItem) {
	if item == nil {
		fmt.Println("nothing queued")
		return
	}
	fmt.Printf("queued %s %s (%s)\n", item.ActivityType, item.ActivityID, item.ID)
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and manage queued activities",
	}
	cmd.AddCommand(outboxListCmd(), outboxUndoCmd(), outboxRescheduleCmd())
	return cmd
}

func outboxListCmd() *cobra.Command {
	var (
		state string
		actor string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox items, newest first",
		RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
			filter := storage.OutboxFilter{State: state, Limit: limit}
			if actor != "" {
				a, err := e.Directory.ResolveAny(ctx, actor)
				if err != nil {
					return err
				}
				filter.ActorURI = a.URI
			}
			items, err := e.Queue.List(ctx, filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATE\tATTEMPTS\tOBJECT\tERROR")
			for _, item := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					item.ID, item.ActivityType, item.State, item.Attempts, item.ObjectID, item.LastError)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&state, "state", "", "only items in this state (queued, delivered, failed)")
	cmd.Flags().StringVar(&actor, "actor", "", "only items sent by this local actor")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum items to list")
	return cmd
}

func outboxUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo <item-or-activity-id>",
		Short: "Queue an Undo of an earlier activity",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
			item, err := e.UndoOutbox(ctx, args[0])
			if err != nil {
				return err
			}
			printItem(item)
			return nil
		}),
	}
}

func outboxRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <item-or-activity-id>",
		Short: "Queue a failed item for another delivery attempt",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
			item, err := e.RescheduleOutbox(ctx, args[0])
			if err != nil {
				return err
			}
			printItem(item)
			return nil
		}),
	}
}

func followCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "follow <local-actor> <remote-handle-or-uri>",
		Short: "Follow a remote actor",
		Example: `  blogfed follow blog @someone@mastodon.example
  blogfed follow alice https://mastodon.example/users/someone`,
		Args: cobra.ExactArgs(2),
		RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
			item, err := e.Follow(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printItem(item)
			return nil
		}),
	}
}

func unfollowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unfollow <local-actor> <remote-handle-or-uri>",
		Short: "Stop following a remote actor",
		Args:  cobra.ExactArgs(2),
		RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
			item, err := e.Unfollow(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printItem(item)
			return nil
		}),
	}
}

func moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <local-actor> <new-account>",
		Short: "Tell followers a local actor has moved to another account",
		Long: `Sends a Move to the followers of a local actor. The new account must
already list the local actor in its aliases (alsoKnownAs).`,
		Args: cobra.ExactArgs(2),
		RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
			item, err := e.Move(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printItem(item)
			return nil
		}),
	}
}

func postCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Federate changes to a published post",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "delete <permalink>",
			Short: "Federate a Delete for a post",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
				item, err := e.DeletePost(ctx, args[0])
				if err != nil {
					return err
				}
				printItem(item)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "update <permalink>",
			Short: "Federate the current content of a post",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
				item, err := e.UpdatePost(ctx, args[0])
				if err != nil {
					return err
				}
				printItem(item)
				return nil
			}),
		},
		&cobra.Command{
			Use:       "visibility <permalink> <public|quiet_public|private>",
			Short:     "Change who can see a post",
			Args:      cobra.ExactArgs(2),
			ValidArgs: []string{"public", "quiet_public", "private"},
			RunE: withEngine(func(ctx context.Context, e *server.Engine, args []string) error {
				item, err := e.SetVisibility(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				printItem(item)
				return nil
			}),
		},
	)
	return cmd
}
