package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pipeshard/pipeshard/internal/jobs"
)

// CreateValidateCmd creates the validate command, which checks the job
// definitions file without executing anything.
func CreateValidateCmd() *cobra.Command {
	var jobsFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the job definitions file",
		RunE: func(c *cobra.Command, args []string) error {
			defs, err := jobs.LoadFile(jobsFile)
			if err != nil {
				return err
			}
			for _, job := range defs {
				status := "ok"
				if job.Disabled {
					status = "disabled"
				}
				fmt.Fprintf(os.Stdout, "%s: %s (%d partitions, codec %s)\n", job.ID, status, len(job.Inputs), job.CodecName())
			}
			fmt.Fprintf(os.Stdout, "%d jobs valid\n", len(defs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobsFile, "jobs", "j", "jobs.toml", "Path to job definitions file")
	return cmd
}
