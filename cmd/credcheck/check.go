package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tastythames/credcheck/internal/batch"
	"github.com/tastythames/credcheck/internal/cache"
	"github.com/tastythames/credcheck/internal/notify"
	"github.com/tastythames/credcheck/internal/validator"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one batch and print the results",
		Long: `check validates every target once and prints each message as it is
delivered, followed by a summary table. Interrupt to stop the batch; targets
already being validated are still reported.`,
		Args: cobra.NoArgs,
		RunE: doCheck,
	}
	cmd.Flags().String("recipient", "", "address that receives the SMTP test message")
	cmd.Flags().String("owner", "cli", "owner name used in logs and results")
	return cmd
}

func doCheck(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recipient, _ := cmd.Flags().GetString("recipient")
	owner, _ := cmd.Flags().GetString("owner")

	lister, closeLister, err := openLister(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLister() }()

	out := cmd.OutOrStdout()
	results := cache.NewMemCache(0)
	opts, err := batchOptions(cfg, printer(out), results, nil)
	if err != nil {
		return err
	}

	d := batch.NewDispatcher(ctx, batch.NewRegistry(), lister, opts)
	outcome, job, err := d.Start(ctx, owner, batch.StartOptions{Recipient: recipient})
	d.Close()
	if err != nil {
		return err
	}
	if outcome != batch.OutcomeStarted {
		return nil
	}

	fmt.Fprintln(out, summary(results.Snapshot()))
	if job.State() != batch.StateCompleted {
		return fmt.Errorf("batch %s", job.State())
	}
	return nil
}

// printer writes every message on its own line.
func printer(w io.Writer) notify.Func {
	var mu sync.Mutex
	return func(_ context.Context, _, text string) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintln(w, text)
		return err
	}
}

func summary(snap map[string]cache.Result) string {
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	failed := 0
	for _, id := range ids {
		r := snap[id]
		status, reason := "ok", ""
		if !r.OK() {
			failed++
			status, reason = "failed", validator.Reason(r.Err)
		}
		rows = append(rows, []string{id, r.Host, status, r.Duration.Round(time.Millisecond).String(), reason})
	}
	rows = append(rows, []string{"", "", strconv.Itoa(len(ids)-failed) + "/" + strconv.Itoa(len(ids)) + " ok", "", ""})
	return renderTable(
		[]string{"ID", "HOST", "STATUS", "TOOK", "REASON"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
