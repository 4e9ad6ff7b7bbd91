package main

import (
	"fmt"
	"time"

	"clinicnotify/internal/auth"
	"clinicnotify/internal/services"

	"github.com/spf13/cobra"
)

var scanAt string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Create reminders for appointments entering the reminder window",
	RunE: func(cmd *cobra.Command, args []string) error {
		now, err := referenceTime(scanAt)
		if err != nil {
			return err
		}
		a, err := openPipeline()
		if err != nil {
			return err
		}

		res, err := a.Scanner.Scan(cmd.Context(), now)
		if err != nil {
			return err
		}
		if !res.Enabled {
			fmt.Fprintln(cmd.OutOrStdout(), "Reminder scheduling is disabled (REMINDERS_ENABLED=false)")
			return nil
		}
		from, to := a.Scanner.Window(now)
		fmt.Fprintf(cmd.OutOrStdout(), "Window %s .. %s\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
		fmt.Fprintf(cmd.OutOrStdout(), "Candidates: %d  Scheduled: %d  Failed: %d  Reminders created: %d\n",
			res.Candidates, res.Scheduled, res.Failed, res.RemindersCreated)
		return nil
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Send every due reminder and mark it sent",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openPipeline()
		if err != nil {
			return err
		}
		res, err := a.Drainer.DrainDue(cmd.Context(), time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Processed: %d  Delivered: %d  Fallback: %d\n",
			res.Processed, res.Delivered, res.FallbackSent)
		return nil
	},
}

var vapidKeysCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for web push",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := services.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
		return nil
	},
}

var (
	tokenUser   string
	tokenExpiry time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token signed with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		v, err := auth.NewTokenValidator(cfg.JWTSecret)
		if err != nil {
			return err
		}
		token, err := v.GenerateToken(tokenUser, tokenExpiry)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanAt, "at", "", "reference time (RFC 3339) instead of now")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to put in the subject claim")
	tokenCmd.Flags().DurationVar(&tokenExpiry, "expiry", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}

func referenceTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t.UTC(), nil
}
