// cmd/dialog-manager/validate.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/pkg/registry"
)

func newValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the domain registry: intent tree, forms and slot expressions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Dialogue.RegistryPath
			}

			domain, err := registry.LoadRegistry(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := domain.Problems()
			for _, p := range problems {
				code := apperrors.Normalize(p).Code
				fmt.Fprintf(out, "%s\t%s\n", code, p.Error())
			}
			if len(problems) > 0 {
				return fmt.Errorf("%s: %d problem(s)", path, len(problems))
			}
			fmt.Fprintf(out, "%s: %d intents, %d forms OK\n", path, len(domain.Intents), len(domain.Forms))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "registry", "", "domain registry file (default is dialogue.registry_path)")
	return cmd
}
