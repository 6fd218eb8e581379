/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/container"
	"github.com/spf13/cobra"
)

// workflowsCmd represents the workflows command
var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage automation workflows",
}

// runDueCmd 执行到期的定时工作流,供外部 cron 调用
var runDueCmd = &cobra.Command{
	Use:   "run-due",
	Short: "Trigger every enabled workflow whose schedule is due",
	Long: `Trigger every enabled workflow whose cron schedule is due at the current time.
Intended to be invoked by an external scheduler (cron, Kubernetes CronJob)
when the in-process scheduler is disabled. Prints a JSON summary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// 本次运行即为调度,不启动进程内调度器
		cfg.Workflow.SchedulerInterval = 0

		ctr, err := container.NewContainer(cfg, container.Options{})
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 启动事件分发,保证本次运行产生的事件被投递
		ctx := auth.WithIdentity(context.Background(), auth.SystemIdentity())
		if err := ctr.Start(ctx); err != nil {
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		summary, err := ctr.Automation().RunDue(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to run due workflows: %w", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(summary); err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d workflow(s) failed", summary.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(runDueCmd)

	runDueCmd.Flags().Duration("timeout", 10*time.Minute, "Maximum time to spend on due workflows")
}
