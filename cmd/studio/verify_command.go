package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gelap-studio/internal/app"
	"gelap-studio/internal/studio"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a Gemini API key is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				key := strings.TrimSpace(key)
				if key == "" {
					key = a.Config.GeminiAPIKey
				}
				if key == "" {
					return errors.New("no API key: pass --key or set GEMINI_API_KEY")
				}
				if err := a.Gemini.VerifyCredential(cmd.Context(), key); err != nil {
					return fmt.Errorf("verify %s: %s", maskKey(key), studio.Describe(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "API key %s is valid.\n", maskKey(key))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Key to check instead of the configured one")
	return cmd
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
