package doctor

import (
	"context"
	"errors"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/chatwidget/internal/core/config"
)

// ConfigCheck reports field errors as failures and config warnings as
// warnings. A config with neither yields a single passing item.
type ConfigCheck struct {
	cfg  *config.Config
	path string
}

func NewConfigCheck(cfg *config.Config, path string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, path: path}
}

func (c *ConfigCheck) Name() string { return "Configuration" }

func (c *ConfigCheck) Run(_ context.Context) Result {
	if c.cfg == nil {
		return Result{Name: c.Name(), Items: []CheckItem{
			{Label: "Config loaded", Status: StatusFail, Detail: "configuration not loaded"},
		}}
	}

	var items []CheckItem
	if err := c.cfg.ValidateDeep(c.path); err != nil {
		items = append(items, failuresFrom(err)...)
	}
	for _, w := range c.cfg.Warnings() {
		items = append(items, CheckItem{Label: warningLabel(w), Status: StatusWarn, Detail: w.Message})
	}

	if len(items) == 0 {
		items = []CheckItem{{Label: "Config valid", Status: StatusPass, Detail: c.path}}
	}
	return Result{Name: c.Name(), Items: items}
}

func failuresFrom(err error) []CheckItem {
	var fields criterio.FieldErrors
	if !errors.As(err, &fields) {
		return []CheckItem{{Label: "validation", Status: StatusFail, Detail: err.Error()}}
	}

	items := make([]CheckItem, 0, len(fields))
	for _, fe := range fields {
		label := fe.Field
		if label == "" {
			label = "validation"
		}
		items = append(items, CheckItem{Label: label, Status: StatusFail, Detail: fe.Err.Error()})
	}
	return items
}

func warningLabel(w config.ValidationWarning) string {
	if w.Item == "" {
		return w.Category
	}
	return w.Category + " (" + w.Item + ")"
}
