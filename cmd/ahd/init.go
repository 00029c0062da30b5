package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const configTemplate = `# Afterhours dispatch service configuration.
base_url: %q

server:
  port: 8080

database:
  driver: sqlite
  path: afterhours.db

twilio:
  account_sid: %q
  auth_token: %q
  from_number: %q

ack:
  link_secret: %q
  link_ttl: 2h

# alerts:
#   platform: slack
#   slack:
#     bot_token: xoxb-...
#     channel: "#dispatch-alerts"

# Escalation timing. Offsets are from the first dispatch; the defaults
# match a 20-minute window for normal calls and 12 minutes for emergencies.
# retry:
#   normal:
#     offsets: [2m, 5m, 8m, 11m, 14m]
#     cutoff: 20m
#     max_attempts: 6
#   high:
#     offsets: [1m, 3m, 5m, 7m, 9m]
#     cutoff: 12m
#     max_attempts: 6

recovery:
  staleness: 5m
  sweep_cron: "*/5 * * * *"
`

func newInitCmd() *cobra.Command {
	var (
		outPath string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter config file",
		Long: `Prompts for the notification provider credentials and writes a starter
afterhours.yaml. Secrets are read without echo when stdin is a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, outPath, force)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "afterhours.yaml", "where to write the config")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func runInit(cmd *cobra.Command, outPath string, force bool) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(outPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
	}

	reader := bufio.NewReader(cmd.InOrStdin())

	baseURL, err := prompt(out, reader, "Public base URL (for callbacks and ack links)", "http://localhost:8080")
	if err != nil {
		return err
	}
	accountSID, err := prompt(out, reader, "Twilio account SID", "")
	if err != nil {
		return err
	}
	authToken, err := promptSecret(out, reader, "Twilio auth token")
	if err != nil {
		return err
	}
	fromNumber, err := prompt(out, reader, "Twilio from number (E.164)", "")
	if err != nil {
		return err
	}
	linkSecret, err := promptSecret(out, reader, "Ack link signing secret")
	if err != nil {
		return err
	}

	content := fmt.Sprintf(configTemplate, baseURL, accountSID, authToken, fromNumber, linkSecret)
	if err := os.WriteFile(outPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Fprintf(out, "\nWrote %s\n", outPath)
	fmt.Fprintln(out, "Next: add businesses and on-call rosters to the database, then run: ahd db init && ahd serve")
	return nil
}

func prompt(out io.Writer, in *bufio.Reader, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// promptSecret reads without echo when stdin is a terminal, falling back to
// a plain line read otherwise (tests, pipes).
func promptSecret(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
