package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/aurora-verify/internal/obs"
)

// SentEmail is a captured email.
type SentEmail struct {
	To       string
	Template string
	Subject  string
	HTML     string
	Data     any
}

// MockSender captures emails instead of sending them. When outboxDir is
// set each email is also written there as a JSON file.
type MockSender struct {
	mu        sync.Mutex
	Emails    []SentEmail
	outboxDir string
	seq       uint64
}

// NewMockSender creates a mock sender. An empty outboxDir keeps emails in
// memory only.
func NewMockSender(outboxDir string) *MockSender {
	if outboxDir != "" {
		if err := os.MkdirAll(outboxDir, 0o755); err != nil {
			obs.Pkg("notify").Warn("outbox_dir_unavailable", "dir", outboxDir, "error", err)
			outboxDir = ""
		}
	}
	return &MockSender{outboxDir: outboxDir}
}

// Send renders and captures the email.
func (m *MockSender) Send(to, templateName string, data any) error {
	subject, body := renderTemplate(templateName, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = append(m.Emails, SentEmail{
		To:       to,
		Template: templateName,
		Subject:  subject,
		HTML:     body,
		Data:     data,
	})
	obs.Pkg("notify").Info("email_captured", "to", to, "template", templateName, "subject", subject)

	return m.writeOutboxEvent(outboxEvent{
		To:             to,
		Template:       templateName,
		Subject:        subject,
		SentAtUnixNano: time.Now().UnixNano(),
	})
}

// LastEmail returns the most recently captured email, or the zero value.
func (m *MockSender) LastEmail() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Emails) == 0 {
		return SentEmail{}
	}
	return m.Emails[len(m.Emails)-1]
}

// Count returns the number of captured emails.
func (m *MockSender) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Emails)
}

type outboxEvent struct {
	Sequence       uint64 `json:"sequence"`
	To             string `json:"to"`
	Template       string `json:"template"`
	Subject        string `json:"subject"`
	SentAtUnixNano int64  `json:"sent_at_unix_nano"`
}

func (m *MockSender) writeOutboxEvent(event outboxEvent) error {
	if m.outboxDir == "" {
		return nil
	}

	m.seq++
	event.Sequence = m.seq

	fileName := fmt.Sprintf("%020d-%s-%s.json",
		event.Sequence,
		sanitizeOutboxComponent(event.Template),
		sanitizeOutboxComponent(event.To),
	)
	finalPath := filepath.Join(m.outboxDir, fileName)
	tempPath := finalPath + ".tmp"

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write outbox temp file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename outbox file: %w", err)
	}
	return nil
}

var outboxSanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9._@-]+`)

func sanitizeOutboxComponent(input string) string {
	safe := strings.TrimSpace(input)
	if safe == "" {
		return "unknown"
	}
	return outboxSanitizePattern.ReplaceAllString(safe, "_")
}
