package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/blackbear10000/price-monitor/internal/notify"
	"github.com/blackbear10000/price-monitor/internal/storage"
)

// Check runs one on-demand evaluation pass and prints the accepted firings.
// With Notify set, each firing is also delivered synchronously.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	evaluator := a.newEvaluator(store)

	var records []storage.TriggerRecord
	if opts.SubjectID != "" {
		records, err = evaluator.EvaluateSubject(ctx, opts.SubjectID)
	} else {
		records, err = evaluator.EvaluateCycle(ctx)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts fired")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tSymbol\tType\tCondition\tPrice\tRule")
	for _, record := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			record.FiredAt.UTC().Format(time.RFC3339),
			record.SubjectSymbol,
			record.RuleType,
			record.Condition,
			notify.FormatPrice(record.CurrentPrice),
			record.RuleID,
		)
	}
	writer.Flush()

	if !opts.Notify {
		return nil
	}

	dispatcher, err := a.newDispatcher(store)
	if err != nil {
		return err
	}
	if dispatcher == nil {
		return fmt.Errorf("alerting.enabled 必须为 true 才能发送通知")
	}
	for _, record := range records {
		dispatcher.DeliverNow(ctx, record)
	}
	return nil
}
