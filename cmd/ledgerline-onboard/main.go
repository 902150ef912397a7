package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ledgerline/ledgerline/internal/onboarding"
	"github.com/ledgerline/ledgerline/internal/onboarding/credentials"
	"github.com/ledgerline/ledgerline/internal/platform/config"
	"github.com/ledgerline/ledgerline/internal/platform/telemetry"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	baseURL    string
	credsPath  string
}

// env is what every subcommand needs once flags and config are resolved.
type env struct {
	cfg   config.ClientConfig
	creds *credentials.Store
	api   *onboarding.APIClient
}

func (g *globalFlags) load() (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cc := cfg.Client
	if g.baseURL != "" {
		cc.BaseURL = g.baseURL
	}
	if g.credsPath != "" {
		cc.CredentialsPath = g.credsPath
	}
	if cc.CredentialsPath == "" {
		if cc.CredentialsPath, err = credentials.DefaultPath(); err != nil {
			return nil, err
		}
	}

	// Logs go to stderr as text, away from the forms.
	logger := telemetry.NewLogger(cfg.Log.Level, "text", os.Stderr)

	creds := credentials.NewStore(cc.CredentialsPath)
	api := onboarding.NewAPIClient(cc.BaseURL, creds,
		onboarding.WithTimeouts(
			time.Duration(cc.StepTimeoutSecs)*time.Second,
			time.Duration(cc.PresetsTimeoutSecs)*time.Second,
		),
		onboarding.WithLogger(logger),
	)
	return &env{cfg: cc, creds: creds, api: api}, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "ledgerline-onboard",
		Short:         "Set up a Ledgerline tenant step by step",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&g.baseURL, "server", "", "API base URL (overrides client.base_url)")
	root.PersistentFlags().StringVar(&g.credsPath, "credentials", "", "credentials file (overrides client.credentials_path)")

	root.AddCommand(newRunCmd(g), newStatusCmd(g), newLoginCmd(g), newLogoutCmd(g))
	return root
}
