package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lukefun/Q-System/internal/align"
	"github.com/lukefun/Q-System/internal/scheduler"
	"github.com/lukefun/Q-System/internal/scheduler/jobs"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the cron scheduler",
	Long: `Runs the scheduled jobs in the foreground until interrupted:
the daily bar update after market close and the weekly reference-data
refresh.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	gw := a.gateway()
	aligner := align.New(a.store, a.store, a.log)

	sched := scheduler.New(a.log)
	if err := sched.AddJob(jobs.NewDailyUpdateJob(a.store, gw, a.cfg, a.log)); err != nil {
		return err
	}
	if err := sched.AddJob(jobs.NewReferenceDataJob(a.store, gw, aligner, a.log)); err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	fmt.Println("scheduler running, press Ctrl-C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return nil
}
