// cmd/dialog-manager/chat.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dialog-manager/internal/common/logger"
	"dialog-manager/internal/dialogue"
)

func newChatCmd() *cobra.Command {
	var (
		session string
		raw     bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the dialogue engine on stdin, one message per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.NewStructured("warn", "console")

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := buildApp(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for fmt.Fprint(out, "> "); scanner.Scan(); fmt.Fprint(out, "> ") {
				msg := strings.TrimSpace(scanner.Text())
				if msg == "" {
					continue
				}
				res, _ := a.engine.Process(ctx, dialogue.Turn{SessionID: session, Message: msg})
				session = res.SessionID
				if raw {
					b, _ := json.MarshalIndent(res, "", "  ")
					fmt.Fprintln(out, string(b))
					continue
				}
				fmt.Fprintf(out, "[%s] %s\n", res.Response.Kind, res.Response.Text)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id to continue (default is a new session)")
	cmd.Flags().BoolVar(&raw, "json", false, "print the full turn result as JSON")
	return cmd
}
