package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

// RunOptions holds flags of the run command.
type RunOptions struct {
	Stores []string
	Failed bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pass over the configured stores",
		Long: `Run one pass over every configured store, or over the stores named
with --store. Each store is synced independently; the command exits with
status 1 when any store failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Stores, "store", "s", nil, "store id to sync (repeatable)")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only re-run stores whose latest recorded pass failed")

	return cmd
}

// RunSummary is the JSON output of the run command.
type RunSummary struct {
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []model.SyncResult `json:"results"`
}

func runPass(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions) error {
	app, err := newApp(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()

	ids := opts.Stores
	if opts.Failed {
		failed, err := app.Orchestrator.FailedStores(ctx)
		if err != nil {
			return err
		}
		if len(failed) == 0 {
			app.Logger.Info("no failed stores to re-run")
			return nil
		}
		ids = failed
	}

	results, err := app.Orchestrator.Ingest(ctx, ids...)
	if err != nil {
		if syncerr.KindOf(err) == syncerr.KindConfiguration {
			return WrapExitError(ExitCommandError, "cannot start pass", err)
		}
		return err
	}

	summary := RunSummary{Results: make([]model.SyncResult, 0, len(results))}
	for _, r := range results {
		summary.Results = append(summary.Results, r)
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	sort.Slice(summary.Results, func(i, j int) bool { return summary.Results[i].StoreID < summary.Results[j].StoreID })

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if err := out.Write(summary, func(w io.Writer) error { return writeResults(w, summary) }); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d stores failed", summary.Failed, len(results)))
	}
	return nil
}

func writeResults(w io.Writer, summary RunSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STORE\tSTATUS\tINSERTED\tUPDATED\tSKIPPED\tDURATION\tERROR")
	for _, r := range summary.Results {
		var total model.WriteCounts
		for _, c := range r.Counts {
			total.Add(*c)
		}

		status := "ok"
		if !r.Success {
			status = string(r.ErrorKind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.StoreID, status, total.Inserted, total.Updated, total.Skipped, r.Duration().Round(time.Millisecond), r.Error)
	}
	fmt.Fprintf(tw, "\n%d succeeded, %d failed\n", summary.Succeeded, summary.Failed)
	return tw.Flush()
}
