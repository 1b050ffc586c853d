package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// jobsCmd represents the jobs command group
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Scheduled job management",
	Long:  `Inspect and run the periodic jobs normally driven by the scheduler.`,
}

func namedJobs() map[string]func(time.Time) error {
	return map[string]func(time.Time) error{
		"undecided_email_reminder":    engine.Jobs.UndecidedEmailReminder,
		"obligee_deadline_reminder":   engine.Jobs.ObligeeDeadlineReminder,
		"applicant_deadline_reminder": engine.Jobs.ApplicantDeadlineReminder,
		"add_expirations":             engine.Jobs.AddExpirations,
		"close_inforequests":          engine.Jobs.CloseInforequests,
	}
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job names",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range []string{
			"undecided_email_reminder",
			"obligee_deadline_reminder",
			"applicant_deadline_reminder",
			"add_expirations",
			"close_inforequests",
		} {
			fmt.Println(name)
		}
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run one job immediately",
	Long:  `Run a job outside its scheduled slots. The run is not recorded as a slot, so the scheduler will still run the job at its next slot.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fn, ok := namedJobs()[args[0]]
		if !ok {
			fmt.Fprintf(os.Stderr, "error: unknown job %q, see 'jobs list'\n", args[0])
			os.Exit(1)
		}

		if err := fn(engine.Clock.Now().In(engine.Location)); err != nil {
			fmt.Fprintf(os.Stderr, "error: job %s failed: %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("Job %s finished.\n", args[0])
	},
}

var jobsTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler tick",
	Long:  `Run all jobs whose slots have passed today and are not yet recorded. Runs are recorded, so repeating the tick is a no-op.`,
	Run: func(cmd *cobra.Command, args []string) {
		engine.Scheduler.Tick()
		fmt.Println("Tick finished.")
	},
}

// pumpCmd runs one mail pump cycle: fetch inbound, route, submit outbound.
var pumpCmd = &cobra.Command{
	Use:   "pump",
	Short: "Run one mail pump cycle",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		engine.Pump.Pump(ctx)
		fmt.Println("Pump cycle finished.")
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRunCmd)
	jobsCmd.AddCommand(jobsTickCmd)
}
