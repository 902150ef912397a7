package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/onboarding"
	"github.com/ledgerline/ledgerline/internal/onboarding/credentials"
	"github.com/spf13/cobra"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Resume the onboarding wizard at the tenant's current step",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			wiz := onboarding.NewWizard(e.api, e.creds, reauthPrompt(out, e.cfg.ReauthenticationURL))
			return runWizard(cmd.Context(), wiz, e.api, huhPrompter{}, out)
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tenant's onboarding progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.load()
			if err != nil {
				return err
			}
			status, err := e.api.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(*status))
			return nil
		},
	}
}

func newLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored session credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.load()
			if err != nil {
				return err
			}
			if err := e.creds.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("logged out"))
			return nil
		},
	}
}

func newLoginCmd(g *globalFlags) *cobra.Command {
	var tenantID, email, role string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain tokens from a dev-mode server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant is required")
			}
			e, err := g.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := devLogin(ctx, http.DefaultClient, e.cfg.BaseURL, e.creds, tenantID, email, role); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("logged in to tenant "+tenantID))
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&role, "role", "tenant_admin", "role to request")
	return cmd
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TenantID     string `json:"tenant_id"`
}

// devLogin exchanges a tenant id for tokens and stores them.
func devLogin(ctx context.Context, hc *http.Client, baseURL string, creds *credentials.Store, tenantID, email, role string) error {
	body, err := json.Marshal(map[string]string{"tenant_id": tenantID, "email": email, "role": role})
	if err != nil {
		return err
	}
	url := strings.TrimRight(baseURL, "/") + "/auth/dev/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: %s %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("login response carried no access token")
	}

	for key, value := range map[string]string{
		credentials.AccessToken:  tok.AccessToken,
		credentials.RefreshToken: tok.RefreshToken,
		credentials.TenantID:     tok.TenantID,
	} {
		if err := creds.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// reauthPrompt tells the user where to sign in again after the server
// rejected the session.
func reauthPrompt(out io.Writer, url string) onboarding.ReauthenticatorFunc {
	return func(context.Context) error {
		fmt.Fprintln(out, warnStyle.Render("Your session has expired."))
		fmt.Fprintf(out, "Sign in again at %s, then run `ledgerline-onboard run` to continue.\n", url)
		return nil
	}
}
