package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pipeshard/pipeshard/internal/config"
	"github.com/pipeshard/pipeshard/internal/events"
	"github.com/pipeshard/pipeshard/internal/jobs"
	"github.com/pipeshard/pipeshard/internal/logging"
)

// CreateRunCmd creates the run command, which executes one job's partitions
// in the foreground and prints a per-partition summary.
func CreateRunCmd() *cobra.Command {
	var jobsFile string
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "run [job-id]",
		Short: "Run a pipe job in the foreground",
		Long: `Executes every partition of the named job through its external command ` +
			`and writes decoded output to the job's output directory. Blocks until all ` +
			`partitions have finished or the job is interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			jobID := args[0]

			loggingConfig := config.LoadLoggingConfig("")
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("cli").With("job", jobID)

			store := jobs.NewTOML(jobsFile)
			if err := store.Load(); err != nil {
				return fmt.Errorf("load jobs file: %w", err)
			}
			if _, ok := store.Get(jobID); !ok {
				return fmt.Errorf("job %s not found in %s", jobID, store.Path())
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := jobs.NewRunner(store, events.New())
			status, err := runner.Run(ctx, jobID)
			if err != nil {
				return err
			}

			for _, p := range status.Partitions {
				line := fmt.Sprintf("partition %d: %s (%d elements)", p.Partition, p.State, p.Elements)
				if p.Error != "" {
					line += " error: " + p.Error
				}
				fmt.Fprintln(os.Stdout, line)
			}
			logger.Info("Run finished", "state", string(status.State))
			if status.State != jobs.StateDone {
				return fmt.Errorf("job %s finished %s", jobID, status.State)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobsFile, "jobs", "j", "jobs.toml", "Path to job definitions file")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")
	return cmd
}
