package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ibkchat/insight/backend/internal/models"
	"github.com/ibkchat/insight/backend/pkg/logger"
	"gorm.io/gorm"
)

// Notification severities. Info notifications go to report subscribers;
// critical ones additionally reach critical-only bots.
const (
	SeverityInfo     = "info"
	SeverityCritical = "critical"
)

// ReportNotification is the fire-and-forget payload sent to IM bots.
type ReportNotification struct {
	Title    string
	Message  string
	Severity string
}

type NotificationService struct {
	db     *gorm.DB
	client *http.Client
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		db:     db,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// notificationAdapter abstracts one IM vendor's webhook payload format.
type notificationAdapter interface {
	SendMessage(s *NotificationService, bot *models.IMBot, message string) error
}

func getAdapter(botType string) notificationAdapter {
	switch botType {
	case "wechat_work":
		return &wecomAdapter{}
	case "dingtalk":
		return &dingtalkAdapter{}
	case "feishu":
		return &feishuAdapter{}
	case "slack":
		return &slackAdapter{}
	default:
		return &genericAdapter{}
	}
}

// Send delivers the notification to every matching active bot. An explicit
// bot id list (from runtime settings) overrides the subscription flags.
// Callers treat any returned error as best-effort only.
func (s *NotificationService) Send(botIDs []uint, n *ReportNotification) error {
	var bots []models.IMBot

	if len(botIDs) > 0 {
		if err := s.db.Where("id IN ? AND is_active = ?", botIDs, true).Find(&bots).Error; err != nil {
			return err
		}
	} else {
		query := s.db.Where("is_active = ? AND report_notify = ?", true, true)
		if n.Severity != SeverityCritical {
			query = query.Where("critical_only = ?", false)
		}
		if err := query.Find(&bots).Error; err != nil {
			return err
		}
	}

	if len(bots) == 0 {
		logger.Infof("[Notification] No bots configured for %s notifications", n.Severity)
		return nil
	}

	message := buildNotificationMessage(n)

	var lastErr error
	successCount := 0
	for _, bot := range bots {
		if err := getAdapter(bot.Type).SendMessage(s, &bot, message); err != nil {
			logger.Warnf("[Notification] Failed to send to bot %s: %v", bot.Name, err)
			lastErr = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func buildNotificationMessage(n *ReportNotification) string {
	marker := "ℹ️"
	if n.Severity == SeverityCritical {
		marker = "🚨"
	}
	return fmt.Sprintf("%s **%s**\n\n%s", marker, n.Title, n.Message)
}

// splitMessage splits a long message into chunks, trying to break at newlines.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var parts []string
	remaining := msg

	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			parts = append(parts, remaining)
			break
		}

		chunk := remaining[:maxLen]
		breakPoint := maxLen
		for i := len(chunk) - 1; i > maxLen/2; i-- {
			if chunk[i] == '\n' {
				breakPoint = i + 1
				break
			}
		}

		parts = append(parts, remaining[:breakPoint])
		remaining = remaining[breakPoint:]
	}

	return parts
}

func (s *NotificationService) postJSON(webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// --- vendor adapters ---

type wecomAdapter struct{}

func (a *wecomAdapter) SendMessage(s *NotificationService, bot *models.IMBot, message string) error {
	const maxLen = 4000
	parts := splitMessage(message, maxLen)
	for i, part := range parts {
		content := part
		if len(parts) > 1 {
			content = fmt.Sprintf("**[%d/%d]**\n\n%s", i+1, len(parts), part)
		}
		payload := map[string]interface{}{
			"msgtype": "markdown",
			"markdown": map[string]string{
				"content": content,
			},
		}
		if err := s.postJSON(bot.Webhook, payload); err != nil {
			return err
		}
	}
	return nil
}

type dingtalkAdapter struct{}

func dingTalkSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (a *dingtalkAdapter) SendMessage(s *NotificationService, bot *models.IMBot, message string) error {
	const maxLen = 19000

	webhookURL := bot.Webhook
	if bot.Secret != "" {
		timestamp := time.Now().UnixMilli()
		sign := dingTalkSign(timestamp, bot.Secret)
		webhookURL = fmt.Sprintf("%s&timestamp=%d&sign=%s", bot.Webhook, timestamp, url.QueryEscape(sign))
	}

	parts := splitMessage(message, maxLen)
	for i, part := range parts {
		title := "Chat Report"
		if len(parts) > 1 {
			title = fmt.Sprintf("Chat Report [%d/%d]", i+1, len(parts))
		}
		payload := map[string]interface{}{
			"msgtype": "markdown",
			"markdown": map[string]string{
				"title": title,
				"text":  part,
			},
		}
		if err := s.postJSON(webhookURL, payload); err != nil {
			return err
		}
	}
	return nil
}

type feishuAdapter struct{}

func feishuSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (a *feishuAdapter) SendMessage(s *NotificationService, bot *models.IMBot, message string) error {
	const maxLen = 4000

	sendPart := func(content string) error {
		payload := map[string]interface{}{
			"msg_type": "text",
			"content": map[string]string{
				"text": content,
			},
		}
		if bot.Secret != "" {
			timestamp := time.Now().Unix()
			payload["timestamp"] = fmt.Sprintf("%d", timestamp)
			payload["sign"] = feishuSign(timestamp, bot.Secret)
		}
		return s.postJSON(bot.Webhook, payload)
	}

	parts := splitMessage(message, maxLen)
	for i, part := range parts {
		content := part
		if len(parts) > 1 {
			content = fmt.Sprintf("[%d/%d]\n\n%s", i+1, len(parts), part)
		}
		if err := sendPart(content); err != nil {
			return err
		}
	}
	return nil
}

type slackAdapter struct{}

func (a *slackAdapter) SendMessage(s *NotificationService, bot *models.IMBot, message string) error {
	const maxLen = 3000

	parts := splitMessage(message, maxLen)
	for i, part := range parts {
		text := part
		if len(parts) > 1 {
			text = fmt.Sprintf("[%d/%d]\n%s", i+1, len(parts), part)
		}
		payload := map[string]interface{}{
			"text": text,
			"blocks": []map[string]interface{}{
				{
					"type": "section",
					"text": map[string]string{
						"type": "mrkdwn",
						"text": text,
					},
				},
			},
		}
		if err := s.postJSON(bot.Webhook, payload); err != nil {
			return err
		}
	}
	return nil
}

type genericAdapter struct{}

func (a *genericAdapter) SendMessage(s *NotificationService, bot *models.IMBot, message string) error {
	payload := map[string]interface{}{
		"message": message,
	}
	return s.postJSON(bot.Webhook, payload)
}
