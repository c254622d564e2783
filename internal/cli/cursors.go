package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

// NewCursorsCommand creates the cursors command group.
func NewCursorsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursors",
		Short: "Inspect or reset extraction cursors",
	}

	cmd.AddCommand(newCursorsListCommand(rootOpts))
	cmd.AddCommand(newCursorsResetCommand(rootOpts))

	return cmd
}

func newCursorsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <store-id>",
		Short: "List the persisted cursors of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			cursors, err := app.Orchestrator.Cursors(context.Background(), args[0])
			if err != nil {
				return commandError("cannot list cursors", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Write(cursors, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "STORE\tENTITY\tLAST ID")
				for _, c := range cursors {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", c.StoreID, c.Entity, c.LastID)
				}
				return tw.Flush()
			})
		},
	}
}

func newCursorsResetCommand(rootOpts *RootOptions) *cobra.Command {
	var entities []string

	cmd := &cobra.Command{
		Use:   "reset <store-id>",
		Short: "Delete the cursors of a store so the next pass re-extracts everything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]model.EntityType, 0, len(entities))
			for _, e := range entities {
				entity, err := model.ParseEntityType(e)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --entity", err)
				}
				parsed = append(parsed, entity)
			}

			app, err := newApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Orchestrator.ResetCursors(context.Background(), args[0], parsed...)
			if err != nil {
				return commandError("cannot reset cursors", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Write(map[string]any{"store_id": args[0], "deleted": n}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "deleted %d cursor(s) of store %s\n", n, args[0])
				return err
			})
		},
	}

	cmd.Flags().StringArrayVarP(&entities, "entity", "e", nil, "entity type to reset (repeatable; default all)")
	return cmd
}

func commandError(msg string, err error) error {
	if syncerr.KindOf(err) == syncerr.KindConfiguration {
		return WrapExitError(ExitCommandError, msg, err)
	}
	return err
}
