package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralts/langindex/internal/config"
	"github.com/ralts/langindex/internal/preflight"
)

// newDoctorCmd creates the doctor command. There is no embedder to
// check here — the source parser is an external collaborator this
// module never ships — so this carries only the resource checks:
// disk, memory, write permissions, and file descriptor limits.
func newDoctorCmd() *cobra.Command {
	var verbose bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `doctor runs system diagnostics to ensure langindexd can operate
correctly in this workspace.

Checks:
  - Disk space
  - Memory availability
  - Write permissions
  - File descriptor limits

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, root)

	if jsonOutput {
		return outputDoctorJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	dd := dataDir(root)
	if !preflight.NeedsCheck(dd) {
		age := preflight.MarkerAge(dd)
		if age > 0 {
			cmd.Printf("\nLast successful check: %s ago\n", age.Round(time.Second))
		}
	}

	if checker.HasCriticalFailures(results) {
		return &doctorError{message: "system check failed"}
	}
	return nil
}

type doctorError struct{ message string }

func (e *doctorError) Error() string { return e.message }

type doctorJSONOutput struct {
	Status string                 `json:"status"`
	Checks []doctorJSONCheckEntry `json:"checks"`
}

type doctorJSONCheckEntry struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSONOutput{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorJSONCheckEntry, len(results)),
	}
	for i, r := range results {
		out.Checks[i] = doctorJSONCheckEntry{
			Name:     r.Name,
			Status:   r.Status.String(),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
