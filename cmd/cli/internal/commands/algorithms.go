package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/tsrunner/internal/client"
	"github.com/wolfeidau/tsrunner/internal/engine"
	"github.com/wolfeidau/tsrunner/internal/server"
)

// AlgorithmsCmd prints the algorithm catalogue of a pipeline. It needs no login.
type AlgorithmsCmd struct {
	Pipeline string `arg:"" enum:"forecast,anomaly" help:"Pipeline (forecast, anomaly)"`
	Server   string `help:"Server URL" default:"http://localhost:8000" env:"TSCTL_SERVER"`
	CacheDir string `help:"Directory for cached API responses, in memory when empty"`
	JSON     bool   `help:"Print raw JSON"`
}

func (a *AlgorithmsCmd) Run(ctx context.Context, globals *Globals) error {
	cfg := client.DefaultConfig()
	cfg.ServerURL = a.Server
	cfg.CacheDir = a.CacheDir

	c, err := client.New(cfg)
	if err != nil {
		return err
	}

	body, err := c.Algorithms(ctx, a.Pipeline)
	if err != nil {
		return fmt.Errorf("failed to list algorithms: %w", err)
	}
	if a.JSON {
		return printJSON(body)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALGORITHM\tPARAMS")
	printAlgorithms(w, body.Data)
	if len(body.ThresholdClasses) > 0 {
		fmt.Fprintln(w, "\t")
		fmt.Fprintln(w, "THRESHOLD CLASS\tPARAMS")
		printAlgorithms(w, body.ThresholdClasses)
	}
	return w.Flush()
}

func printAlgorithms(w *tabwriter.Writer, algs []server.AlgorithmView) {
	for _, alg := range algs {
		fmt.Fprintf(w, "%s\t%s\n", alg.Name, formatParams(alg.Params))
	}
}

func formatParams(params map[string]engine.ParamType) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+":"+string(params[name]))
	}
	return strings.Join(parts, " ")
}
