package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/chatwidget/internal/core/config"
	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/internal/printer"
	"github.com/hay-kot/chatwidget/internal/styles"
)

type ConfigCmd struct {
	flags *Flags

	// Command-specific flags
	format string
	force  bool
	yes    bool

	// form collects init answers; replaced in tests.
	form func(*InitAnswers) error
}

// NewConfigCmd creates a new config command.
func NewConfigCmd(flags *Flags) *ConfigCmd {
	return &ConfigCmd{flags: flags, form: runInitForm}
}

// Register adds the config commands to the application.
func (cmd *ConfigCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "chatwidget config validate [options]",
				Description: "Validates the configuration file, checking URLs, durations, the escalation link template and storage settings.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.runValidate,
			},
			{
				Name:      "init",
				Usage:     "Write a configuration file",
				UsageText: "chatwidget config init [options]",
				Description: `Asks for the common settings and writes them to the config file.
With --yes the defaults are written without asking.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "force",
						Usage:       "overwrite an existing config file",
						Destination: &cmd.force,
					},
					&cli.BoolFlag{
						Name:        "yes",
						Aliases:     []string{"y"},
						Usage:       "accept the defaults without prompting",
						Destination: &cmd.yes,
					},
				},
				Action: cmd.runInit,
			},
		},
	})

	return app
}

func (cmd *ConfigCmd) runValidate(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if cmd.flags.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	err := cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath)
	warnings := cmd.flags.Config.Warnings()

	if cmd.format == "json" {
		return cmd.outputJSON(c, err, warnings)
	}

	return cmd.outputText(p, err, warnings)
}

func (cmd *ConfigCmd) outputJSON(c *cli.Command, validationErr error, warnings []config.ValidationWarning) error {
	type fieldError struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}

	out := struct {
		Valid    bool                       `json:"valid"`
		Errors   []fieldError               `json:"errors,omitempty"`
		Warnings []config.ValidationWarning `json:"warnings,omitempty"`
	}{
		Valid:    validationErr == nil,
		Warnings: warnings,
	}

	for _, fe := range extractFieldErrors(validationErr) {
		out.Errors = append(out.Errors, fieldError{Field: fe.Field, Message: fe.Err.Error()})
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if validationErr != nil {
		return cli.Exit("", 1)
	}
	return nil
}

// extractFieldErrors extracts field errors from a validation error.
func extractFieldErrors(err error) criterio.FieldErrors {
	if err == nil {
		return nil
	}
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return criterio.FieldErrors{{Err: err}}
}

func (cmd *ConfigCmd) outputText(p *printer.Printer, validationErr error, warnings []config.ValidationWarning) error {
	fieldErrs := extractFieldErrors(validationErr)

	if len(fieldErrs) > 0 {
		p.Printf("Errors")
		for _, fe := range fieldErrs {
			if fe.Field != "" {
				p.Printf("  %s %s: %s", printer.Cross, fe.Field, fe.Err.Error())
			} else {
				p.Printf("  %s %s", printer.Cross, fe.Err.Error())
			}
		}
	}

	if len(warnings) > 0 {
		if len(fieldErrs) > 0 {
			p.Printf("")
		}
		p.Printf("Warnings")
		for _, warn := range warnings {
			msg := warn.Message
			if warn.Item != "" {
				msg = warn.Item + ": " + msg
			}
			p.Printf("  %s %s: %s", printer.Dot, warn.Category, msg)
		}
	}

	p.Printf("")
	if validationErr == nil {
		if len(warnings) > 0 {
			p.Successf("Configuration is valid (%d warning(s))", len(warnings))
		} else {
			p.Successf("Configuration is valid")
		}
		return nil
	}

	p.Errorf("%d error(s), %d warning(s)", len(fieldErrs), len(warnings))
	return cli.Exit("", 1)
}

// InitAnswers are the settings asked for by config init.
type InitAnswers struct {
	BotName   string
	Language  string
	Webhook   string
	Recipient string
	Storage   string
	Persist   bool
	Analytics bool
}

func answersFrom(cfg config.Config) InitAnswers {
	return InitAnswers{
		BotName:   cfg.BotName,
		Language:  cfg.Language,
		Webhook:   cfg.Webhook.URL,
		Recipient: cfg.Escalation.Recipient,
		Storage:   cfg.Storage.Driver,
		Persist:   cfg.Persist,
		Analytics: cfg.Analytics.Enabled,
	}
}

// Apply copies the answers onto cfg.
func (a InitAnswers) Apply(cfg *config.Config) {
	cfg.BotName = strings.TrimSpace(a.BotName)
	cfg.Language = a.Language
	cfg.Webhook.URL = strings.TrimSpace(a.Webhook)
	cfg.Escalation.Recipient = strings.TrimSpace(a.Recipient)
	cfg.Storage.Driver = a.Storage
	cfg.Persist = a.Persist
	cfg.Analytics.Enabled = a.Analytics
}

func (cmd *ConfigCmd) runInit(ctx context.Context, _ *cli.Command) error {
	p := printer.Ctx(ctx)
	path := cmd.flags.ConfigPath

	if _, err := os.Stat(path); err == nil && !cmd.force {
		return fmt.Errorf("config file %s already exists; use --force to overwrite", path)
	}

	cfg := config.DefaultConfig()
	answers := answersFrom(cfg)

	if !cmd.yes {
		if err := cmd.form(&answers); err != nil {
			return fmt.Errorf("config form: %w", err)
		}
	}

	answers.Apply(&cfg)
	if err := cfg.Save(path); err != nil {
		return err
	}

	// loading fills in data-dir paths, so validate what a later run will see
	loaded, err := config.Load(path, cmd.flags.DataDir)
	if err != nil {
		return fmt.Errorf("config written to %s but needs editing: %w", path, err)
	}

	p.Success("Configuration written", path)
	for _, w := range loaded.Warnings() {
		p.Warnf("%s: %s", w.Item, w.Message)
	}
	return nil
}

func runInitForm(a *InitAnswers) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("config init needs an interactive terminal; use --yes for defaults")
	}

	languages := make([]huh.Option[string], 0, 3)
	for _, tag := range locale.Default().Tags() {
		languages = append(languages, huh.NewOption(string(tag), string(tag)))
	}

	drivers := []huh.Option[string]{
		huh.NewOption("JSON file", config.StorageJSONFile),
		huh.NewOption("SQLite", config.StorageSQLite),
		huh.NewOption("Redis", config.StorageRedis),
		huh.NewOption("Memory (not kept between runs)", config.StorageMemory),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot name").
				Description("Leave empty to use the name from the language pack").
				Value(&a.BotName),
			huh.NewSelect[string]().
				Title("Language").
				Options(languages...).
				Value(&a.Language),
			huh.NewInput().
				Title("Responder webhook URL").
				Description("Leave empty to answer only from the fallback table").
				Value(&a.Webhook).
				Validate(optionalURL),
			huh.NewInput().
				Title("WhatsApp number for hand-off").
				Description("Digits only, with country code").
				Value(&a.Recipient).
				Validate(digitsOnly),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage").
				Options(drivers...).
				Value(&a.Storage),
			huh.NewConfirm().
				Title("Keep conversations between runs?").
				Value(&a.Persist),
			huh.NewConfirm().
				Title("Track usage events?").
				Value(&a.Analytics),
		),
	).WithTheme(styles.FormTheme())

	return form.Run()
}

func optionalURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

func digitsOnly(s string) error {
	for _, r := range strings.TrimSpace(s) {
		if r < '0' || r > '9' {
			return fmt.Errorf("digits only")
		}
	}
	return nil
}
