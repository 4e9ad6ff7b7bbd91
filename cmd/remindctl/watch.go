package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"clinicnotify/internal/logger"
	"clinicnotify/internal/permission"
	"clinicnotify/internal/poller"

	"github.com/spf13/cobra"
)

var (
	watchURL      string
	watchToken    string
	watchEndpoint string
	watchInterval time.Duration
	watchStorage  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a user's missed notifications in the terminal",
	Long: `watch polls the notification API like the browser fallback poller:
notifications sent since start are shown here when the given push endpoint
is not registered, then marked read. Press Enter to check immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchToken == "" {
			watchToken = os.Getenv("CLINICNOTIFY_TOKEN")
		}
		if watchToken == "" {
			return fmt.Errorf("--token or CLINICNOTIFY_TOKEN is required")
		}
		zl, err := logger.New(false, "warn")
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		in := bufio.NewReader(cmd.InOrStdin())
		prompt := permission.NewPrompt(permission.NewFileStore(watchStorage), terminalRequester{in: in, out: out}, permission.Default)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Ask up front; stdin belongs to the wake loop afterwards
		perm, err := prompt.Request(ctx)
		if err != nil {
			return err
		}
		if perm != permission.Granted {
			fmt.Fprintf(out, "Terminal notifications are off (%s); missed reminders are still marked read\n", perm)
		}

		client := poller.NewAPIClient(watchURL, watchToken, watchEndpoint, nil)
		p := poller.New(client, client, terminalDisplay{out: out}, decidedGate{prompt}, watchInterval, time.Now().UTC(), zl)

		fmt.Fprintf(out, "Watching %s every %s (Enter checks now, Ctrl+C quits)\n", watchURL, watchInterval)
		p.Start(ctx)
		defer p.Stop()

		lines := make(chan struct{})
		go func() {
			for {
				if _, err := in.ReadString('\n'); err != nil {
					return
				}
				lines <- struct{}{}
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-lines:
				p.Wake()
			}
		}
	},
}

func init() {
	home, _ := os.UserHomeDir()
	watchCmd.Flags().StringVar(&watchURL, "url", "http://localhost:8080", "reminder service base URL")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "access token (default $CLINICNOTIFY_TOKEN)")
	watchCmd.Flags().StringVar(&watchEndpoint, "endpoint", "", "push endpoint registered for this client, if any")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", poller.DefaultInterval, "polling interval")
	watchCmd.Flags().StringVar(&watchStorage, "storage", filepath.Join(home, ".clinicnotify", "storage.json"), "local storage file")
}

type terminalDisplay struct {
	out io.Writer
}

func (d terminalDisplay) Show(_ context.Context, n poller.Notification) error {
	_, err := fmt.Fprintf(d.out, "[%s] %s: %s\n", n.SentAt.Local().Format("15:04"), n.Title, n.Message)
	if err == nil && n.Data.URL != "" {
		_, err = fmt.Fprintf(d.out, "        %s\n", n.Data.URL)
	}
	return err
}

// terminalRequester is the permission prompt of the terminal client. "later"
// and "never" close it without deciding.
type terminalRequester struct {
	in  *bufio.Reader
	out io.Writer
}

func (r terminalRequester) Request(context.Context) (permission.Permission, error) {
	fmt.Fprint(r.out, "Show appointment reminders in this terminal? [y/N/later/never] ")
	answer, err := r.in.ReadString('\n')
	if err != nil {
		return permission.Default, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return permission.Granted, nil
	case "later":
		return permission.Default, &permission.DismissedError{}
	case "never":
		return permission.Default, &permission.DismissedError{Permanent: true}
	default:
		return permission.Denied, nil
	}
}

// decidedGate answers from the recorded permission without prompting.
type decidedGate struct {
	prompt *permission.Prompt
}

func (g decidedGate) Allowed(context.Context) (bool, error) {
	return g.prompt.Permission() == permission.Granted, nil
}
