package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/morezero/agent-command-receiver/pkg/db"
)

const eventsListLimit = 50

func runEvents(params db.ListCommandEventsParams) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	repo := db.NewRepository(pool)
	rows, err := repo.ListCommandEvents(ctx, params)
	if err != nil {
		return err
	}
	var counts []db.OutcomeCount
	if params.AgentID != "" {
		counts, err = repo.CountByOutcome(ctx, params.AgentID)
		if err != nil {
			return err
		}
	}
	return printEvents(os.Stdout, rows, counts)
}

// printEvents writes audit rows as a table, followed by outcome totals when counts is non-empty.
func printEvents(w io.Writer, rows []db.CommandEvent, counts []db.OutcomeCount) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLED_AT\tAGENT\tREQUEST\tCOMMAND\tOUTCOME\tMS\tERROR")
	for _, e := range rows {
		errText := ""
		if e.Error != nil {
			errText = *e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			e.HandledAt.UTC().Format("2006-01-02T15:04:05Z"), e.AgentID, e.RequestID, e.CommandName, e.Outcome, e.DurationMs, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no handled commands recorded")
	}

	if len(counts) > 0 {
		fmt.Fprintln(w)
		for _, c := range counts {
			fmt.Fprintf(w, "%s: %d\n", c.Outcome, c.Count)
		}
	}
	return nil
}
