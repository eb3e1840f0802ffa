package notifications

import (
	"context"

	"github.com/alertaperu/community-alarm/internal/models"
)

// MessageChannel delivers a formatted text to a chat (group or private)
type MessageChannel interface {
	Send(ctx context.Context, target models.ExternalID, text string) error
}

// VoiceChannel places a phone call that speaks the given text
type VoiceChannel interface {
	Call(ctx context.Context, address, spokenText string) error
}

// ReportChannel delivers the record of a processed alert to operators
type ReportChannel interface {
	SendReport(ctx context.Context, record *models.AlertRecord) error
}
