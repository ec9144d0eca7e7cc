package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"pdmflow/internal/model"
	"pdmflow/pkg/logger"
)

// RunNotification summary of a finished run
type RunNotification struct {
	RunID       string             `json:"run_id"`
	Name        string             `json:"name"`
	Experiment  string             `json:"experiment"`
	Status      model.RunStatus    `json:"status"`
	Error       string             `json:"error,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	ModelName   string             `json:"model_name,omitempty"`
	Version     int                `json:"model_version,omitempty"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Notifier posts run notifications to webhooks. Feishu/Lark bot URLs get an
// interactive card, anything else the plain JSON summary.
type Notifier struct {
	defaultURL string
	client     *http.Client
	log        *logger.Logger
}

// NewNotifier creates a notifier. defaultURL is used for runs without their own webhook.
func NewNotifier(defaultURL string, log *logger.Logger) *Notifier {
	if defaultURL == "" {
		log.Info("Default webhook URL not configured, only per-run webhooks will be notified")
	}
	return &Notifier{
		defaultURL: defaultURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// NotifyRun posts n to url, or to the default URL when url is empty.
// Without any URL it is a no-op.
func (n *Notifier) NotifyRun(ctx context.Context, url string, note *RunNotification) error {
	if url == "" {
		url = n.defaultURL
	}
	if url == "" {
		return nil
	}

	var message interface{} = note
	if isFeishu(url) {
		message = buildRunCard(note)
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}

	n.log.InfoCtx(ctx, "Notification sent for run %s (%s)", note.RunID, note.Status)
	return nil
}

func isFeishu(url string) bool {
	return strings.Contains(url, "open.feishu.cn") || strings.Contains(url, "open.larksuite.com")
}

func buildRunCard(note *RunNotification) map[string]interface{} {
	template, title := "green", "Training run completed"
	if note.Status == model.RunStatusFailed {
		template, title = "red", "Training run failed"
	}

	elements := []interface{}{
		map[string]interface{}{
			"tag": "div",
			"text": map[string]interface{}{
				"content": fmt.Sprintf("**Run**: %s (%s)\n**Experiment**: %s", note.Name, note.RunID, note.Experiment),
				"tag":     "lark_md",
			},
		},
		map[string]interface{}{
			"tag": "hr",
		},
	}

	if note.Error != "" {
		elements = append(elements, map[string]interface{}{
			"tag": "div",
			"text": map[string]interface{}{
				"content": fmt.Sprintf("**Error**: %s", note.Error),
				"tag":     "lark_md",
			},
		})
	}

	if len(note.Metrics) > 0 {
		keys := make([]string, 0, len(note.Metrics))
		for k := range note.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, map[string]interface{}{
				"is_short": true,
				"text": map[string]interface{}{
					"content": fmt.Sprintf("**%s**\n%.4f", k, note.Metrics[k]),
					"tag":     "lark_md",
				},
			})
		}
		elements = append(elements, map[string]interface{}{
			"tag":    "div",
			"fields": fields,
		})
	}

	if note.ModelName != "" {
		elements = append(elements, map[string]interface{}{
			"tag": "div",
			"text": map[string]interface{}{
				"content": fmt.Sprintf("**Registered**: %s version %d", note.ModelName, note.Version),
				"tag":     "lark_md",
			},
		})
	}

	elements = append(elements, map[string]interface{}{
		"tag": "note",
		"elements": []interface{}{
			map[string]interface{}{
				"content": fmt.Sprintf("Finished at %s", note.CompletedAt.Format("2006-01-02 15:04:05")),
				"tag":     "plain_text",
			},
		},
	})

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": template,
				"title": map[string]interface{}{
					"content": title,
					"tag":     "plain_text",
				},
			},
			"elements": elements,
		},
	}
}
