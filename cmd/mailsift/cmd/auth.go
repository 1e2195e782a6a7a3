package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sysdevcode/mailsift/internal/oauth"
)

var authReset bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize mailsift against the Zoho accounts server",
	Long: `auth runs the browser-based OAuth2 authorization flow and stores the
resulting credential under the output directory. Subsequent runs of
"mailsift extract" reuse and silently refresh it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateCredentials(); err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}

		store := oauth.NewStore(cfg.TokenPath(), logger)
		if authReset {
			if err := store.Delete(); err != nil {
				return fmt.Errorf("remove stored credential: %w", err)
			}
			logger.Info("removed stored credential", "path", store.Path())
		}

		mgr := newOAuthManager()
		if !authReset && mgr.HasCredential() {
			fmt.Println("A stored credential already exists; use --reset to re-authorize.")
			return nil
		}

		if err := mgr.Authorize(cmd.Context()); err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
		fmt.Printf("Credential stored at %s\n", store.Path())
		return nil
	},
}

func init() {
	authCmd.Flags().BoolVar(&authReset, "reset", false, "discard any stored credential and re-authorize")
	rootCmd.AddCommand(authCmd)
}
