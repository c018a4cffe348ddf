package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/pkg/randid"
)

// StorageCheck writes, reads back and deletes a probe record.
type StorageCheck struct {
	store   kv.Store
	driver  string
	openErr error
}

// NewStorageCheck creates a storage round-trip check. store may be nil when
// opening the backend failed.
func NewStorageCheck(store kv.Store, driver string) *StorageCheck {
	return &StorageCheck{store: store, driver: driver}
}

// WithOpenError records why the backend could not be opened.
func (c *StorageCheck) WithOpenError(err error) *StorageCheck {
	c.openErr = err
	return c
}

func (c *StorageCheck) Name() string {
	return "Storage"
}

func (c *StorageCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.store == nil {
		detail := "storage not opened"
		if c.openErr != nil {
			detail = c.openErr.Error()
		}
		result.Items = append(result.Items, CheckItem{
			Label:  c.driver,
			Status: StatusFail,
			Detail: detail,
		})
		return result
	}

	key := "doctor_probe_" + randid.Generate(8)
	if err := c.roundTrip(ctx, key); err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  c.driver,
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  c.driver,
		Status: StatusPass,
		Detail: "read and write ok",
	})
	return result
}

func (c *StorageCheck) roundTrip(ctx context.Context, key string) error {
	const value = "ok"

	if err := c.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	entry, err := c.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if entry.Value != value {
		return fmt.Errorf("read back %q, wrote %q", entry.Value, value)
	}

	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
