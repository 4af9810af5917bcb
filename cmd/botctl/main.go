package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/isp-support-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/isp-support-bot/internal/config"
	httpmiddleware "github.com/wolfman30/isp-support-bot/internal/http/middleware"
	"github.com/wolfman30/isp-support-bot/internal/messaging"
	"github.com/wolfman30/isp-support-bot/internal/uazapi"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

var Version = "dev"

// gateway is the part of the Uazapi client the operator commands use.
type gateway interface {
	SetWebhook(ctx context.Context, webhookURL string) (map[string]any, error)
	Status(ctx context.Context) (map[string]any, error)
	SendText(ctx context.Context, number, text string) error
}

type deps struct {
	cfg        *appconfig.Config
	newGateway func() (gateway, error)
	now        func() time.Time
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	d := deps{
		cfg: cfg,
		newGateway: func() (gateway, error) {
			client, err := bootstrap.BuildGateway(cfg, logger)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		now: time.Now,
	}
	if err := newRootCmd(d).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "botctl",
		Short:         "Operator tooling for the ISP support bot",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(webhookCmd(d), statusCmd(d), sendTestCmd(d), tokenCmd(d))
	return root
}

func webhookCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "webhook [public-url]",
		Short: "Point the gateway webhook at this service",
		Long:  "Registers <public-url>/webhook with the gateway. Defaults to WEBHOOK_URL.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := d.cfg.WebhookURL
			if len(args) == 1 {
				target = args[0]
			}
			target = uazapi.WebhookEndpoint(target)
			if target == "" {
				return errors.New("webhook url is required (argument or WEBHOOK_URL)")
			}
			gw, err := d.newGateway()
			if err != nil {
				return err
			}
			result, err := gw.SetWebhook(cmd.Context(), target)
			if err != nil {
				return fmt.Errorf("set webhook %s: %w", target, err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"webhook_url": target, "result": result})
		},
	}
}

func statusCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the gateway instance status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := d.newGateway()
			if err != nil {
				return err
			}
			status, err := gw.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("instance status: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func sendTestCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "send-test <number> <message...>",
		Short: "Send a plain text message through the gateway",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number := messaging.NormalizeIdentity(args[0])
			if number == "" {
				return fmt.Errorf("invalid number %q", args[0])
			}
			gw, err := d.newGateway()
			if err != nil {
				return err
			}
			if err := gw.SendText(cmd.Context(), number, strings.Join(args[1:], " ")); err != nil {
				return fmt.Errorf("send to %s: %w", number, err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"success": true, "number": number})
		},
	}
}

func tokenCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the /admin endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				return errors.New("ttl must be positive")
			}
			token, err := httpmiddleware.IssueOperatorToken(d.cfg.AdminJWTSecret, subject, ttl, d.now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringP("subject", "s", "operator", "Token subject")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
