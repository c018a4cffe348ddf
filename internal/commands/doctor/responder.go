package doctor

import (
	"context"
	"fmt"
	"net/http"
)

// ResponderCheck confirms the webhook host answers HTTP. No message is sent;
// any status code counts as reachable.
type ResponderCheck struct {
	url    string
	client *http.Client
}

// NewResponderCheck creates a responder reachability check. client may be nil.
func NewResponderCheck(url string, client *http.Client) *ResponderCheck {
	if client == nil {
		client = http.DefaultClient
	}
	return &ResponderCheck{url: url, client: client}
}

func (c *ResponderCheck) Name() string {
	return "Responder"
}

func (c *ResponderCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.url == "" {
		result.Items = append(result.Items, CheckItem{
			Label:  "webhook.url",
			Status: StatusWarn,
			Detail: "not set; replies come from the fallback table",
		})
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.url, nil)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  c.url,
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	resp, err := c.client.Do(req)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  c.url,
			Status: StatusFail,
			Detail: fmt.Sprintf("unreachable: %v", err),
		})
		return result
	}
	_ = resp.Body.Close()

	status := StatusPass
	if resp.StatusCode >= http.StatusInternalServerError {
		status = StatusWarn
	}
	result.Items = append(result.Items, CheckItem{
		Label:  c.url,
		Status: status,
		Detail: resp.Status,
	})
	return result
}
