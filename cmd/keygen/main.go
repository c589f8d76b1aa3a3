package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/arnavshah/timetable-wizard-go/internal/config"
	"github.com/arnavshah/timetable-wizard-go/pkg/auth"
	"github.com/spf13/cobra"
)

const secretEnv = "WIZARD_AUTH_MASTER_SECRET"

var secret string

var rootCmd = &cobra.Command{
	Use:   "keygen <name>",
	Short: "Print an HMAC API key for a client name",
	Long: "Signs the client name with the master secret. The key is registered on first use;\n" +
		"it must be minted with the same secret the server runs with.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if secret == "" {
			secret = os.Getenv(secretEnv)
		}
		if secret == "" {
			return errors.New(secretEnv + " not set (pass --secret or add it to .env)")
		}
		svc := auth.NewService(config.AuthConfig{MasterSecret: secret})
		fmt.Fprintf(cmd.OutOrStdout(), "Generated Key for %s:\n%s\n", args[0], svc.GenerateHMACKey(args[0]))
		return nil
	},
}

func main() {
	config.LoadDotEnv()
	rootCmd.Flags().StringVar(&secret, "secret", "", "master secret (defaults to $"+secretEnv+")")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
