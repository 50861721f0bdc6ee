package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ewinther/portalsync/internal/adapter/driven/browser"
	"github.com/ewinther/portalsync/internal/adapter/driven/sso"
	"github.com/ewinther/portalsync/internal/application"
	"github.com/ewinther/portalsync/internal/config"
	"github.com/ewinther/portalsync/internal/domain/model"
)

func newLoginCmd() *cobra.Command {
	var (
		institution string
		headed      bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run the interactive SSO login ceremony",
		Long: `Drives the portal's single-sign-on ceremony in an automated browser,
captures the resulting credential and stores it encrypted in the session
directory. Username and password are prompted for when not configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if !a.cfg.HasLoginCredentials() {
				if err := promptCredentials(a.cfg); err != nil {
					return err
				}
			}

			session, err := browser.NewSession(browser.Options{
				Headless:   a.cfg.Headless && !headed,
				ProfileDir: filepath.Join(a.cfg.SessionDir, "browser-profile"),
				Logger:     a.logger,
			})
			if err != nil {
				return err
			}

			base := strings.TrimRight(a.cfg.BaseURL, "/")
			flow := sso.NewFlow(session, sso.Config{
				LoginURL:      base + "/login",
				PortalURL:     base,
				APIPrefix:     base + "/api/",
				Username:      a.cfg.Username,
				Password:      a.cfg.Password,
				TOTPSecret:    a.cfg.TOTPSecret,
				Institution:   institution,
				CredentialTTL: a.cfg.CredentialTTL,
			}, sso.WithLogger(a.logger))

			guard := application.NewGuard(flow, a.manager, a.logger)
			started, err := guard.Run(cmd.Context())
			if err != nil {
				return err
			}
			if !started {
				return fmt.Errorf("another login is already in progress")
			}

			cred, err := a.manager.GetCredential(cmd.Context())
			if err != nil || cred == nil {
				return fmt.Errorf("login succeeded but no credential is stored")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in. Credential (%s) valid until %s.\n",
				cred.Kind, cred.ExpiresAt.Local().Format("15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVar(&institution, "institution", "", "institution name for the gateway's picker")
	cmd.Flags().BoolVar(&headed, "headed", false, "show the browser window regardless of config")
	return cmd
}

// promptCredentials fills in username and password interactively. The
// password is read with echo disabled and never printed back.
func promptCredentials(cfg *config.Config) error {
	reader := bufio.NewReader(os.Stdin)

	if cfg.Username == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		cfg.Username = strings.TrimSpace(line)
	}

	if cfg.Password.IsEmpty() {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		cfg.Password = model.NewSecret(string(raw))
	}

	if !cfg.HasLoginCredentials() {
		return fmt.Errorf("username and password are required to log in")
	}
	return nil
}
