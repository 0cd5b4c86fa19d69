package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/abelbrown/sharkbox/internal/auth"
	"github.com/abelbrown/sharkbox/internal/logging"
)

func newLoginCmd() *cobra.Command {
	var (
		listen    string
		noBrowser bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Long: `login opens the identity provider in a browser and waits for the redirect
on a loopback port. The backend's advertised authority and client id win over
the configured ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			fallback := auth.Settings{Authority: rt.cfg.OIDCAuthority, ClientID: rt.cfg.OIDCClientID}
			settings := fallback
			if advertised, err := rt.client.AuthConfig(ctx); err != nil {
				logging.Warn("auth config unavailable, using configured provider", "err", err)
			} else {
				settings = auth.Resolve(advertised, fallback)
			}

			out := cmd.OutOrStdout()
			sess, err := auth.Login(ctx, auth.LoginOptions{
				Settings:   settings,
				ListenAddr: listen,
				OpenURL: func(u string) error {
					fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", u)
					if noBrowser {
						return nil
					}
					if err := openBrowser(u); err != nil {
						logging.Debug("browser launch failed", "err", err)
					}
					return nil
				},
			})
			if err != nil {
				return err
			}
			if err := rt.provider.Save(sess); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(out, "Signed in as %s.\n", displayName(sess))
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "loopback address for the redirect (default 127.0.0.1:0)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the URL without launching a browser")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.provider.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()
			sess := rt.session()
			if sess == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in. Run `sharkbox login`.")
				return nil
			}
			printSession(cmd.OutOrStdout(), sess, time.Now(), styled(cmd.OutOrStdout()))
			return nil
		},
	}
}

func displayName(s *auth.Session) string {
	if name := s.Claims.Username(); name != "" {
		return name
	}
	return s.Claims.Subject
}

func printSession(w io.Writer, s *auth.Session, now time.Time, color bool) {
	label := func(k string) string { return k }
	if color {
		st := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		label = func(k string) string { return st.Render(k) }
	}
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(w, "%s %s\n", label(fmt.Sprintf("%-9s", k)), v)
		}
	}
	row("user", displayName(s))
	row("subject", s.Claims.Subject)
	row("email", s.Claims.Email)
	row("name", s.Claims.Name)
	row("issuer", s.Issuer)
	switch {
	case s.Expiry.IsZero():
		row("expires", "never")
	case s.Valid(now):
		row("expires", humanize.RelTime(s.Expiry, now, "ago", "from now"))
	case s.RefreshToken != "":
		row("expires", "expired, will refresh")
	default:
		row("expires", "expired")
	}
}

// openBrowser launches the platform URL handler without waiting for it.
func openBrowser(u string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	case "darwin":
		cmd = exec.Command("open", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	return cmd.Start()
}
