package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/internal/util"
)

// defaultReportMonths is the lookback window when no range is given.
const defaultReportMonths = 6

type revenueReportArgs struct {
	FromMonth string `json:"from_month,omitempty" description:"Range start as YYYY-MM (default 6 months back)"`
	ToMonth   string `json:"to_month,omitempty" description:"Range end as YYYY-MM (default current month)"`
}

// revenueReportTool aggregates monthly revenue into a trend report. It is the
// pipeline's streaming tool: consumers can watch its progress stages live,
// while batch callers get only the final outcome through Execute.
type revenueReportTool struct {
	parameters map[string]any
}

// NewRevenueReport builds the analytics revenue report tool.
func NewRevenueReport() Streaming {
	return &revenueReportTool{parameters: util.CreateSchema(revenueReportArgs{})}
}

func (t *revenueReportTool) Name() string { return "revenue_report" }

func (t *revenueReportTool) Description() string {
	return "Build a monthly revenue trend report for the organization over the given period, with totals, best month and trend direction."
}

func (t *revenueReportTool) Parameters() map[string]any { return t.parameters }

// Execute drains the progress stream and returns the final result. Batch
// callers that do not care about intermediate stages use this path.
func (t *revenueReportTool) Execute(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
	ch, err := t.Stream(ctx, tc, args)
	if err != nil {
		return nil, err
	}
	var last core.Progress
	for p := range ch {
		last = p
	}
	if last.Stage == core.StageError && last.Err != nil {
		return *last.Err, nil
	}
	if last.Result == nil {
		return core.Error{Message: "report produced no result", Code: "EXECUTION_ERROR"}, nil
	}
	return last.Result, nil
}

// Stream runs the report in a goroutine and emits one Progress per stage.
// The channel is buffered so a slow consumer never wedges the report, and is
// always closed after the final emission.
func (t *revenueReportTool) Stream(ctx context.Context, tc *Context, args map[string]any) (<-chan core.Progress, error) {
	from, to, err := reportRange(argString(args, "from_month"), argString(args, "to_month"))
	if err != nil {
		return nil, err
	}

	ch := make(chan core.Progress, 8)
	go func() {
		defer close(ch)

		emit := func(p core.Progress) {
			select {
			case ch <- p:
			case <-ctx.Done():
			}
		}
		fail := func(e core.Error) {
			emit(core.Progress{Stage: core.StageError, Message: e.Message, Err: &e})
		}

		emit(core.Progress{Stage: core.StageLoading, Message: "Preparing revenue report"})
		emit(core.Progress{Stage: core.StageFetchingData, Message: fmt.Sprintf("Fetching revenue %s to %s",
			from.Format("2006-01"), to.Format("2006-01"))})

		// The end month is inclusive: extend to its last instant.
		end := to.AddDate(0, 1, 0).Add(-time.Nanosecond)
		points, err := tc.Store.RevenueByMonth(ctx, tc.OrgID(), from, end)
		if err != nil {
			fail(OutcomeFromError(err))
			return
		}

		emit(core.Progress{Stage: core.StageProcessing, Message: fmt.Sprintf("Aggregating %d monthly bucket(s)", len(points))})

		report := buildReport(points, from, to)

		emit(core.Progress{Stage: core.StageAnalyzing, Message: "Deriving trend"})
		emit(core.Progress{
			Stage:   core.StageComplete,
			Message: "Revenue report ready",
			Result:  core.Data{Payload: Sanitize(report)},
		})
	}()
	return ch, nil
}

// revenueReport is the assembled report payload.
type revenueReport struct {
	From         string               `json:"from"`
	To           string               `json:"to"`
	Points       []domain.RevenuePoint `json:"points"`
	TotalRevenue int64                `json:"total_revenue"`
	TotalOrders  int                  `json:"total_orders"`
	BestPeriod   string               `json:"best_period,omitempty"`
	Trend        string               `json:"trend"` // up | down | flat
}

func buildReport(points []domain.RevenuePoint, from, to time.Time) revenueReport {
	r := revenueReport{
		From:   from.Format("2006-01"),
		To:     to.Format("2006-01"),
		Points: points,
		Trend:  "flat",
	}
	var best int64 = -1
	for _, p := range points {
		r.TotalRevenue += p.Revenue
		r.TotalOrders += p.Orders
		if p.Revenue > best {
			best = p.Revenue
			r.BestPeriod = p.Period
		}
	}
	if n := len(points); n >= 2 {
		half := n / 2
		firstHalf := avgRevenue(points[:half])
		secondHalf := avgRevenue(points[n-half:])
		switch {
		case secondHalf > firstHalf:
			r.Trend = "up"
		case secondHalf < firstHalf:
			r.Trend = "down"
		}
	}
	return r
}

func avgRevenue(points []domain.RevenuePoint) int64 {
	if len(points) == 0 {
		return 0
	}
	var sum int64
	for _, p := range points {
		sum += p.Revenue
	}
	return sum / int64(len(points))
}

// reportRange resolves the requested period, defaulting to the trailing
// window ending at the current month.
func reportRange(fromArg, toArg string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, -(defaultReportMonths - 1), 0)

	var err error
	if toArg != "" {
		if to, err = time.Parse("2006-01", toArg); err != nil {
			return time.Time{}, time.Time{}, &core.ValidationError{Field: "to_month", Message: "must be formatted YYYY-MM"}
		}
	}
	if fromArg != "" {
		if from, err = time.Parse("2006-01", fromArg); err != nil {
			return time.Time{}, time.Time{}, &core.ValidationError{Field: "from_month", Message: "must be formatted YYYY-MM"}
		}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, &core.ValidationError{Field: "from_month", Message: "range start is after range end"}
	}
	return from, to, nil
}
