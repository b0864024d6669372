package domain

import (
	"fmt"
	"strings"
	"time"
)

// TopicReport is the generated summary for one topic.
type TopicReport struct {
	Topic      string `json:"topic"`
	PickupLine string `json:"pickup_line"`
	Summary    string `json:"summary"`
	Fallback   bool   `json:"fallback,omitempty"`
}

// Report is the structured digest built from a ContentSet.
type Report struct {
	UserID      string        `json:"user_id"`
	ContentRef  string        `json:"content_ref"`
	Language    string        `json:"language"`
	GeneratedAt time.Time     `json:"generated_at"`
	Topics      []TopicReport `json:"topics"`
}

// Headline returns the first non-fallback pickup line, used as notification body.
func (r Report) Headline() string {
	for _, t := range r.Topics {
		if !t.Fallback && strings.TrimSpace(t.PickupLine) != "" {
			return t.PickupLine
		}
	}
	return "Fresh news articles are ready!"
}

// Script renders the report as narration text for speech synthesis.
func (r Report) Script(presenter string) string {
	if presenter == "" {
		presenter = "Alex"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi, I'm %s, and here is your update.\n\n", presenter)
	for _, t := range r.Topics {
		if t.Fallback {
			continue
		}
		fmt.Fprintf(&b, "%s.\n%s\n\n", t.Topic, strings.TrimSpace(t.Summary))
	}
	b.WriteString("That's all for now.")
	return b.String()
}

// Podcast records a synthesized audio digest.
type Podcast struct {
	UserID    string    `json:"user_id"`
	ReportRef string    `json:"report_ref"`
	AudioRef  string    `json:"audio_ref"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// PushMessage is the payload handed to the notification-delivery collaborator.
// AudioRef is empty when no podcast was produced.
type PushMessage struct {
	Title     string
	Body      string
	ReportRef string
	AudioRef  string
}
