package doctor

import (
	"context"
	"fmt"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/kv"
)

// OrphanCheck detects stored conversations that no session points at any
// more, and ones that cannot be decoded.
type OrphanCheck struct {
	store kv.Store
	fix   bool
}

// NewOrphanCheck creates a new orphaned conversation check.
// If fix is true, orphaned and unreadable conversations are deleted.
func NewOrphanCheck(store kv.Store, fix bool) *OrphanCheck {
	return &OrphanCheck{store: store, fix: fix}
}

func (c *OrphanCheck) Name() string {
	return "Stored Conversations"
}

func (c *OrphanCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.store == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Storage",
			Status: StatusPass,
			Detail: "no storage configured",
		})
		return result
	}

	records, err := conversation.Scan(ctx, c.store)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "List conversations",
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	var problems []problem
	for _, r := range records {
		switch {
		case r.Err != nil:
			problems = append(problems, problem{record: r, reason: "unreadable conversation"})
		case !r.Current:
			problems = append(problems, problem{record: r, reason: "orphaned conversation (no session record)"})
		}
	}

	if len(problems) == 0 {
		result.Items = append(result.Items, CheckItem{
			Label:  "No orphans",
			Status: StatusPass,
			Detail: fmt.Sprintf("%d conversation(s), all attached to a session", len(records)),
		})
		return result
	}

	for _, p := range problems {
		label := p.record.Scope + p.record.SessionID

		if !c.fix {
			result.Items = append(result.Items, CheckItem{
				Label:   label,
				Status:  StatusWarn,
				Detail:  p.reason,
				Fixable: true,
			})
			continue
		}

		if err := conversation.Remove(ctx, c.store, p.record); err != nil {
			result.Items = append(result.Items, CheckItem{
				Label:  label,
				Status: StatusFail,
				Detail: fmt.Sprintf("failed to delete: %v", err),
			})
		} else {
			result.Items = append(result.Items, CheckItem{
				Label:  label,
				Status: StatusPass,
				Detail: "deleted " + p.reason,
			})
		}
	}

	return result
}

type problem struct {
	record conversation.Record
	reason string
}
