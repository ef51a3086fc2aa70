package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/app"
	"pos-ledger/internal/core"
)

// ErrUsage is returned for unknown commands and missing arguments.
var ErrUsage = errors.New("usage")

const usage = `Available: suggest, replenish, receive <purchase-id>, expected-cash [day],
           close-day <day> <counted>, sales [day], reconcile, outbox`

// Run executes a one-shot CLI command as actor and writes the result to out.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, svc *app.Services, actor core.Actor, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: %s", ErrUsage, usage)
	}

	switch args[0] {
	case "suggest", "sug":
		suggestions, err := svc.Purchases.SuggestReplenishment(ctx, actor.OrgID)
		if err != nil {
			return fmt.Errorf("suggest: %w", err)
		}
		printSuggestions(out, suggestions)

	case "replenish", "rep":
		po, err := svc.Purchases.ReplenishToday(ctx, actor)
		if err != nil {
			return fmt.Errorf("replenish: %w", err)
		}
		if po == nil {
			fmt.Fprintln(out, "Nothing below par. No draft created.")
			return nil
		}
		printPurchase(out, po)

	case "receive":
		if len(args) < 2 {
			return fmt.Errorf("%w: app receive <purchase-id>", ErrUsage)
		}
		po, err := svc.Purchases.ReceivePurchase(ctx, actor, args[1], nil)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		printPurchase(out, po)

	case "expected-cash", "cash":
		snap, err := svc.Cash.ExpectedCash(ctx, actor.OrgID, dayArg(svc, args, 1))
		if err != nil {
			return fmt.Errorf("expected cash: %w", err)
		}
		printCashSnapshot(out, snap)

	case "close-day", "close":
		if len(args) < 3 {
			return fmt.Errorf("%w: app close-day <YYYY-MM-DD> <counted>", ErrUsage)
		}
		counted, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("%w: counted cash %q is not a number", ErrUsage, args[2])
		}
		opening, err := svc.Cash.CloseOpeningForUser(ctx, actor, args[1], counted)
		if err != nil {
			return fmt.Errorf("close day: %w", err)
		}
		printOpening(out, opening)

	case "sales":
		summary, err := svc.Reports.SalesSummary(ctx, actor.OrgID, dayArg(svc, args, 1))
		if err != nil {
			return fmt.Errorf("sales: %w", err)
		}
		printSalesSummary(out, summary)

	case "reconcile", "rec":
		diffs, err := svc.Reports.ReconcileStock(ctx, actor.OrgID)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		printDiscrepancies(out, diffs)

	case "outbox":
		n, err := svc.Dispatcher.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		fmt.Fprintf(out, "Processed %d loyalty outbox row(s).\n", n)

	default:
		return fmt.Errorf("%w: unknown command %s\n%s", ErrUsage, args[0], usage)
	}
	return nil
}

func dayArg(svc *app.Services, args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return svc.Calendar.Today()
}

func printSuggestions(out io.Writer, suggestions []core.ReplenishmentSuggestion) {
	if len(suggestions) == 0 {
		fmt.Fprintln(out, "All items at or above par.")
		return
	}
	fmt.Fprintln(out, strings.Repeat("=", 78))
	fmt.Fprintf(out, "  %-24s %-7s %10s %10s %10s %10s\n", "ITEM", "UNIT", "STOCK", "PAR", "MISSING", "COST")
	fmt.Fprintln(out, strings.Repeat("-", 78))
	total := decimal.Zero
	for _, s := range suggestions {
		fmt.Fprintf(out, "  %-24s %-7s %10s %10s %10s %10s\n",
			s.Name, s.Unit, s.Stock.StringFixed(2), s.Par.StringFixed(2), s.Missing.StringFixed(2), s.SuggestedCost.StringFixed(2))
		total = total.Add(s.SuggestedCost)
	}
	fmt.Fprintln(out, strings.Repeat("-", 78))
	fmt.Fprintf(out, "  %-64s %10s\n", "TOTAL", total.StringFixed(2))
	fmt.Fprintln(out, strings.Repeat("=", 78))
}

func printPurchase(out io.Writer, po *core.PurchaseOrder) {
	fmt.Fprintf(out, "Purchase %s  [%s]  day %s\n", po.ID, po.Status, po.DateKey)
	for _, l := range po.Lines {
		fmt.Fprintf(out, "  %3d  %-24s %10s x %10s = %10s\n",
			l.LineNumber, l.IngredientName, l.Qty.StringFixed(2), l.UnitCost.StringFixed(2), l.TotalCost.StringFixed(2))
	}
	fmt.Fprintf(out, "  TOTAL %s\n", po.Total.StringFixed(2))
}

func printCashSnapshot(out io.Writer, s *core.CashSnapshot) {
	fmt.Fprintf(out, "Expected cash for %s\n", s.DayKey)
	fmt.Fprintf(out, "  %-16s %12s\n", "opening", s.OpeningCash.StringFixed(2))
	fmt.Fprintf(out, "  %-16s %12s\n", "+ delivered", s.DeliveredCash.StringFixed(2))
	fmt.Fprintf(out, "  %-16s %12s\n", "- canceled", s.CanceledCash.StringFixed(2))
	fmt.Fprintf(out, "  %-16s %12s\n", "+ cash in", s.CashIn.StringFixed(2))
	fmt.Fprintf(out, "  %-16s %12s\n", "- cash out", s.CashOut.StringFixed(2))
	fmt.Fprintf(out, "  %-16s %12s\n", "= expected", s.ExpectedCash.StringFixed(2))
}

func printOpening(out io.Writer, o *core.Opening) {
	fmt.Fprintf(out, "Opening %s for %s [%s]\n", o.DayKey, o.UserID, o.Status)
	if o.ExpectedCash != nil && o.CountedCash != nil && o.CashDiff != nil {
		fmt.Fprintf(out, "  expected %s  counted %s  diff %s\n",
			o.ExpectedCash.StringFixed(2), o.CountedCash.StringFixed(2), o.CashDiff.StringFixed(2))
	}
}

func printSalesSummary(out io.Writer, s *core.SalesSummary) {
	fmt.Fprintf(out, "Sales for %s: %d delivered, %d canceled\n", s.DayKey, s.Orders, s.Canceled)
	for _, p := range s.ByPayMethod {
		fmt.Fprintf(out, "  %-8s %4d %12s\n", p.PayMethod, p.Orders, p.Total.StringFixed(2))
	}
	fmt.Fprintf(out, "  total %s  cogs %s  margin %s\n", s.Total.StringFixed(2), s.COGS.StringFixed(2), s.Margin.StringFixed(2))
}

func printDiscrepancies(out io.Writer, diffs []core.StockDiscrepancy) {
	if len(diffs) == 0 {
		fmt.Fprintln(out, "Stock reconciles with the movement log.")
		return
	}
	fmt.Fprintf(out, "%d item(s) out of balance:\n", len(diffs))
	for _, d := range diffs {
		fmt.Fprintf(out, "  %-24s stock %10s  movements %10s  diff %10s\n",
			d.Name, d.Stock.StringFixed(4), d.MovementSum.StringFixed(4), d.Diff.StringFixed(4))
	}
}
