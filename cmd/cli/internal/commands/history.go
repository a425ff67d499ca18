package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/tsrunner/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// HistoryCmd lists past results of a pipeline, or shows one of them.
type HistoryCmd struct {
	ProfileFlags
	Pipeline string `arg:"" enum:"forecast,anomaly" help:"Pipeline (forecast, anomaly)"`
	ID       string `arg:"" optional:"" help:"Result ID to show"`
	JSON     bool   `help:"Print raw JSON"`
}

func (h *HistoryCmd) Run(ctx context.Context, globals *Globals) error {
	sess, err := h.open()
	if err != nil {
		return err
	}

	token, err := sess.accessToken(ctx)
	if err != nil {
		return err
	}

	if h.ID != "" {
		detail, err := sess.client.Result(ctx, token, h.Pipeline, h.ID)
		if err != nil {
			return fmt.Errorf("failed to get result: %w", err)
		}
		if h.JSON {
			return printJSON(detail)
		}

		fmt.Printf("Result:    %s\n", detail.ID)
		fmt.Printf("Status:    %s\n", detail.Status)
		fmt.Printf("Algorithm: %s\n", detail.Algorithm)
		fmt.Printf("Created:   %s\n", detail.CreatedAt.Local().Format(timeFormat))
		if detail.Message != "" {
			fmt.Printf("Message:   %s\n", detail.Message)
		}
		fmt.Printf("Params:    %s\n", string(detail.Params))
		if detail.ResultData != nil {
			printMetrics("train", detail.TrainMetrics)
			printMetrics("test", detail.TestMetrics)
			printSeries("train_ts", detail.TrainTS)
			printSeries("test_ts", detail.TestTS)
			printSeries("exog_ts", detail.ExogTS)
			printSeries("test_pred", detail.TestPred)
			printSeries("test_labels", detail.TestLabels)
		}
		return nil
	}

	results, err := sess.client.Results(ctx, token, h.Pipeline)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	if h.JSON {
		return printJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESULT ID\tSTATUS\tALGORITHM\tTEST METRICS\tCREATED AT")
	for _, r := range results {
		metrics := formatMetrics(r.TestMetrics)
		if r.Status != models.StatusSuccess {
			metrics = truncate(r.Message, 40)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Algorithm, metrics, r.CreatedAt.Local().Format(timeFormat))
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMetrics(label string, metrics map[string]float64) {
	if len(metrics) == 0 {
		return
	}
	fmt.Printf("  %s metrics: %s\n", label, formatMetrics(metrics))
}

func printSeries(label string, ts *models.Timeseries) {
	if ts == nil {
		return
	}
	cols := make([]string, 0, len(ts.Data))
	for name := range ts.Data {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	fmt.Printf("  %-12s %d rows [%s]\n", label, ts.Len(), strings.Join(cols, ", "))
}

// formatMetrics renders metrics sorted by name.
func formatMetrics(metrics map[string]float64) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.4g", name, metrics[name]))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
