package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wolfeidau/tsrunner/internal/server"
	"gopkg.in/yaml.v3"
)

// SubmitCmd runs a job over the stream and prints its progress.
type SubmitCmd struct {
	ProfileFlags
	Pipeline string `arg:"" enum:"forecast,anomaly" help:"Pipeline to run (forecast, anomaly)"`
	Job      string `arg:"" type:"existingfile" help:"YAML or JSON job file"`
	JSON     bool   `help:"Print the final frame as JSON"`
}

func (s *SubmitCmd) Run(ctx context.Context, globals *Globals) error {
	payload, err := loadJobFile(s.Job)
	if err != nil {
		return err
	}

	sess, err := s.open()
	if err != nil {
		return err
	}

	token, err := sess.accessToken(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Submitting %s job to %s\n", s.Pipeline, sess.cred.ServerURL)

	result, err := sess.client.Stream(ctx, token, s.Pipeline, payload, printFrame)
	if err != nil {
		return fmt.Errorf("job stream failed: %w", err)
	}

	if s.JSON && result.Final != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.Final); err != nil {
			return err
		}
	}

	if !result.Succeeded() {
		return fmt.Errorf("job did not succeed (close code %d)", result.CloseCode)
	}

	if result.Final.Data != nil {
		fmt.Printf("Result %s\n", result.Final.Data.ID)
		printMetrics("train", result.Final.Data.TrainMetrics)
		printMetrics("test", result.Final.Data.TestMetrics)
	}
	return nil
}

func printFrame(f *server.Frame) {
	switch {
	case f.Progress != nil:
		fmt.Printf("[%3d%%] %-24s %s\n", f.Progress.Percent, f.Progress.Name, f.Progress.Label)
	case len(f.Detail) > 0:
		for _, d := range f.Detail {
			fmt.Printf("[%s] %s\n", f.Status, d.Msg)
		}
	case f.Message != "":
		fmt.Printf("[%s] %s\n", f.Status, f.Message)
	}
}

// loadJobFile reads a job file and returns it as JSON. Files ending in
// .json are sent as is, anything else is parsed as YAML.
func loadJobFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if !json.Valid(data) {
			return nil, fmt.Errorf("job file %s is not valid JSON", path)
		}
		return data, nil
	}

	var job map[string]any
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse YAML job file: %w", err)
	}

	out, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return out, nil
}
