package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"commerce-sync/internal/model"
	"commerce-sync/internal/repository"
	"commerce-sync/internal/syncerr"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <store-id>",
		Short: "Show what the warehouse holds for a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			status, err := app.Orchestrator.Status(context.Background(), args[0])
			if err != nil {
				if syncerr.KindOf(err) == syncerr.KindConfiguration {
					return WrapExitError(ExitCommandError, "cannot read status", err)
				}
				return err
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Write(status, func(w io.Writer) error { return writeStatus(w, status) })
		},
	}
}

func writeStatus(w io.Writer, status *repository.StoreStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Store:\t%s\n", status.StoreID)
	if status.LastOrderAt != nil {
		fmt.Fprintf(tw, "Last order:\t%s\n", status.LastOrderAt.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintln(tw, "Last order:\t-")
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "TABLE\tROWS\tCURSOR")
	cursors := make(map[model.EntityType]int64, len(status.Cursors))
	for _, c := range status.Cursors {
		cursors[c.Entity] = c.LastID
	}
	for _, entity := range model.AllEntities {
		cursor := "-"
		if id, ok := cursors[entity]; ok {
			cursor = fmt.Sprint(id)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", entity, status.Counts[entity], cursor)
	}
	return tw.Flush()
}
