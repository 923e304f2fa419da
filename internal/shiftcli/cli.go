// Package shiftcli is the kotomoshi command line: it runs the API and
// performs the administrator's monthly chores without the web UI.
package shiftcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/apiapp"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/delivery"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/envutil"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/logger"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/publish"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/roster"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/security"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/store"
	"github.com/alecthomas/kong"
)

var ErrUsage = errors.New("usage")

type cli struct {
	EnvFile  string `name:"env-file" help:"Path to the .env file." default:".env"`
	LogLevel string `name:"log-level" help:"debug, info, warn or error. Defaults to LOG_LEVEL."`
	LogFile  string `name:"log-file" help:"Also write logs to this file. Defaults to LOG_FILE."`

	Setup  setupCmd  `cmd:"" help:"Write a starter .env file."`
	Serve  serveCmd  `cmd:"" help:"Run the HTTP API."`
	Render renderCmd `cmd:"" help:"Render a confirmed month to a PNG file."`
	Send   struct {
		Webhook sendWebhookCmd `cmd:"" help:"Post a confirmed month's image to the webhook."`
		Sheet   sendSheetCmd   `cmd:"" help:"Write a confirmed month into the workbook."`
	} `cmd:"" help:"Deliver a confirmed month."`
	ImportUsers importUsersCmd `cmd:"" name:"import-users" help:"Add staff from an .xlsx or .xls roster."`
	Users       usersCmd       `cmd:"" help:"List allowed users."`
	Token       tokenCmd       `cmd:"" help:"Issue an identity token for local testing."`
	EncodeKey   encodeKeyCmd   `cmd:"" name:"encode-key" help:"Base64 encode a secret for IDENTITY_SECRET_B64."`
}

// env is bound into every command's Run method.
type env struct {
	out     io.Writer
	envFile string
}

func Execute(args []string) error {
	return execute(args, os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) error {
	var c cli
	parser, err := newParser(&c, stdout, stderr)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if err := envutil.LoadDotEnv(c.EnvFile); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := logger.Init(logger.Config{
		Level: firstNonEmpty(c.LogLevel, os.Getenv("LOG_LEVEL")),
		File:  firstNonEmpty(c.LogFile, os.Getenv("LOG_FILE")),
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return kctx.Run(&env{out: stdout, envFile: c.EnvFile})
}

func newParser(c *cli, stdout, stderr io.Writer) (*kong.Kong, error) {
	return kong.New(c,
		kong.Name("kotomoshi"),
		kong.Description("Shift submission, confirmation and delivery for the Kotomoshi team."),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
	)
}

// PrintUsage writes the command summary to w.
func PrintUsage(w io.Writer) {
	var c cli
	parser, err := newParser(&c, w, w)
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	kctx, err := kong.Trace(parser, nil)
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	_ = kctx.PrintUsage(false)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// openServices opens the configured store and publisher for one-shot
// commands. The caller closes the store.
func openServices(ctx context.Context) (*store.Store, *publish.Service, error) {
	cfg, err := apiapp.DefaultConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	return apiapp.Wire(ctx, cfg)
}

type setupCmd struct {
	IdentitySecret string   `name:"identity-secret" required:"" help:"Shared secret used to verify identity tokens."`
	AdminEmails    []string `name:"admin-email" required:"" help:"Administrator email. Repeat or comma separate."`
	WebhookURL     string   `name:"webhook-url" help:"Webhook that receives the monthly image."`
	Workbook       string   `help:"Path of the schedule workbook."`
	Font           string   `help:"TTF, OTF or TTC font used for names in the schedule image."`
	DBPath         string   `name:"db-path" default:"data/kotomoshi.db" help:"SQLite database path."`
	Addr           string   `default:":8080" help:"API listen address."`
	Force          bool     `help:"Overwrite an existing env file."`
}

func (c *setupCmd) Run(e *env) error {
	if strings.TrimSpace(c.IdentitySecret) == "" {
		return errors.New("--identity-secret must not be empty")
	}
	values := map[string]string{
		"API_ADDR":            c.Addr,
		"DB_PATH":             c.DBPath,
		"IDENTITY_SECRET_B64": envutil.EncodeSecret(c.IdentitySecret),
		"ADMIN_EMAILS":        strings.Join(c.AdminEmails, ","),
		"LOG_LEVEL":           "info",
	}
	if c.WebhookURL != "" {
		values["WEBHOOK_URL"] = c.WebhookURL
	}
	if c.Workbook != "" {
		values["WORKBOOK_PATH"] = c.Workbook
	}
	if c.Font != "" {
		values["FONT_PATH"] = c.Font
	}
	if err := envutil.WriteDotEnv(e.envFile, values, c.Force); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "wrote %s\n", e.envFile)
	return nil
}

type serveCmd struct {
	Addr string `help:"Listen address. Overrides API_ADDR."`
}

func (c *serveCmd) Run(e *env) error {
	cfg, err := apiapp.DefaultConfigFromEnv()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := apiapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type renderCmd struct {
	Year  int    `arg:"" help:"Year, e.g. 2025."`
	Month int    `arg:"" help:"Month, 1-12."`
	Out   string `short:"o" help:"Output file. Defaults to YYYY-MM-shift.png."`
}

func (c *renderCmd) Run(e *env) error {
	ctx := context.Background()
	st, publisher, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	png, err := publisher.Image(ctx, c.Year, c.Month)
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = delivery.ImageFileName(c.Year, c.Month)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "wrote %s (%d bytes)\n", out, len(png))
	return nil
}

type sendWebhookCmd struct {
	Year  int `arg:"" help:"Year, e.g. 2025."`
	Month int `arg:"" help:"Month, 1-12."`
}

func (c *sendWebhookCmd) Run(e *env) error {
	ctx := context.Background()
	st, publisher, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := publisher.SendToWebhook(ctx, c.Year, c.Month); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "sent %s\n", delivery.ImageFileName(c.Year, c.Month))
	return nil
}

type sendSheetCmd struct {
	Year  int `arg:"" help:"Year, e.g. 2025."`
	Month int `arg:"" help:"Month, 1-12."`
}

func (c *sendSheetCmd) Run(e *env) error {
	ctx := context.Background()
	st, publisher, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := publisher.SendToSheet(ctx, c.Year, c.Month)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "sheet %s: %d cells written\n", report.Sheet, len(report.Written))
	for _, u := range report.Unmatched {
		fmt.Fprintf(e.out, "  unmatched %s %s: %s\n", u.Date, u.Name, u.Reason)
	}
	return nil
}

type importUsersCmd struct {
	File string `arg:"" type:"existingfile" help:"Roster spreadsheet (.xlsx or .xls)."`
}

func (c *importUsersCmd) Run(e *env) error {
	ctx := context.Background()
	st, _, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := roster.Import(ctx, st, f, filepath.Base(c.File))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "imported %d users\n", len(result.Users))
	for _, s := range result.Skipped {
		fmt.Fprintf(e.out, "  skipped row %d: %s\n", s.Row, s.Reason)
	}
	return nil
}

type usersCmd struct{}

func (c *usersCmd) Run(e *env) error {
	ctx := context.Background()
	st, _, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.ListAllowedUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(e.out, "No allowed users")
		return nil
	}
	for _, u := range users {
		role := "staff"
		if u.IsAdmin {
			role = "admin"
		}
		fmt.Fprintf(e.out, "%s\t%s\t%s\n", u.Email, u.DisplayName, role)
	}
	return nil
}

type tokenCmd struct {
	Email string        `arg:"" help:"Email claim of the token."`
	Name  string        `help:"Display name claim."`
	TTL   time.Duration `name:"ttl" default:"1h" help:"Token lifetime."`
}

func (c *tokenCmd) Run(e *env) error {
	secret, err := envutil.Secret("IDENTITY_SECRET", "IDENTITY_SECRET_B64")
	if err != nil {
		return err
	}
	verifier, err := security.NewVerifier(secret)
	if err != nil {
		return err
	}
	token, err := verifier.IssueToken(c.Email, c.Name, c.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, token)
	return nil
}

type encodeKeyCmd struct {
	Value string `arg:"" optional:"" help:"Secret to encode."`
	File  string `type:"existingfile" help:"Read the secret from this file instead."`
}

func (c *encodeKeyCmd) Run(e *env) error {
	raw := c.Value
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return err
		}
		raw = strings.TrimRight(string(data), "\n")
	}
	if raw == "" {
		return fmt.Errorf("%w: a value or --file is required", ErrUsage)
	}
	fmt.Fprintln(e.out, envutil.EncodeSecret(raw))
	return nil
}
