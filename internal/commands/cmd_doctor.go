package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/chatwidget/internal/commands/doctor"
	"github.com/hay-kot/chatwidget/internal/printer"
)

type DoctorCmd struct {
	flags  *Flags
	format string
	fix    bool
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "doctor",
		Usage:     "Run health checks on the widget setup",
		UsageText: "chatwidget doctor [--format text|json] [--fix]",
		Description: `Checks the configuration, the storage backend, the responder webhook
and the stored conversations. Exits non-zero when any check fails.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "fix",
				Usage:       "delete orphaned and unreadable conversations",
				Destination: &cmd.fix,
			},
		},
		Action: cmd.run,
	})
	return app
}

// checks lists what doctor runs. Without a config only the config check
// can say anything useful.
func (cmd *DoctorCmd) checks() []doctor.Check {
	cfg := cmd.flags.Config
	list := []doctor.Check{doctor.NewConfigCheck(cfg, cmd.flags.ConfigPath)}
	if cfg == nil {
		return list
	}
	return append(list,
		doctor.NewStorageCheck(cmd.flags.Store, cfg.Storage.Driver).WithOpenError(cmd.flags.StoreErr),
		doctor.NewResponderCheck(cfg.Webhook.URL, nil),
		doctor.NewOrphanCheck(cmd.flags.Store, cmd.fix),
	)
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.format != "text" && cmd.format != "json" {
		return fmt.Errorf("unsupported --format %q (text, json)", cmd.format)
	}

	results := doctor.RunAll(ctx, cmd.checks())
	report := newDoctorReport(results)

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		report.print(printer.Ctx(ctx))
	}

	if !report.Healthy {
		return cli.Exit("", 1)
	}
	return nil
}

type doctorReport struct {
	Healthy bool            `json:"healthy"`
	Passed  int             `json:"passed"`
	Warned  int             `json:"warned"`
	Failed  int             `json:"failed"`
	Fixable int             `json:"fixable,omitempty"`
	Checks  []doctor.Result `json:"checks"`
}

func newDoctorReport(results []doctor.Result) doctorReport {
	passed, warned, failed := doctor.Summary(results)
	return doctorReport{
		Healthy: failed == 0,
		Passed:  passed,
		Warned:  warned,
		Failed:  failed,
		Fixable: doctor.CountFixable(results),
		Checks:  results,
	}
}

func (r doctorReport) print(p *printer.Printer) {
	item := map[doctor.Status]func(label, detail string){
		doctor.StatusPass: p.CheckItem,
		doctor.StatusWarn: p.WarnItem,
		doctor.StatusFail: p.FailItem,
	}

	for _, res := range r.Checks {
		p.Section(res.Name)
		for _, it := range res.Items {
			item[it.Status](it.Label, it.Detail)
		}
		p.Printf("")
	}

	p.Printf("%d passed, %d warnings, %d failed", r.Passed, r.Warned, r.Failed)
	if r.Fixable > 0 {
		p.Infof("%d item(s) can be cleaned up with 'chatwidget doctor --fix'", r.Fixable)
	}
}
