// cmd/dialog-manager/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dialog-manager/internal/common/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dialog-manager",
	Short: "Task-oriented dialogue manager",
	Long: `dialog-manager resolves user intents over an intent tree, fills the
slots of the matching form and answers every turn with the action the policy
chain selects. It runs as a Zeebe job worker for the dialogue-turn task.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
	rootCmd.AddCommand(newServeCmd(), newValidateCmd(), newChatCmd())
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
