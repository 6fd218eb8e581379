/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ai-service",
	Short: "AI content service API server",
	Long: `AI Service is a REST API server that generates, translates, enhances
and publishes ministry content through an external AI provider.
Tasks can require human approval, templates are reusable, and
workflows chain AI steps together on demand or on a schedule.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: search in current directory, ./config, or $HOME/.ai-service)")
}

// GetRootCmd 返回根命令(用于测试)
func GetRootCmd() *cobra.Command {
	return rootCmd
}
