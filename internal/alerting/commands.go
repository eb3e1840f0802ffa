package alerting

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/alertaperu/community-alarm/internal/apperror"
	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/alertaperu/community-alarm/internal/notifications"
	"github.com/sirupsen/logrus"
)

// Chat commands understood by the bot
const (
	CommandSOS      = "sos"
	CommandRegister = "miregistro"
	CommandStart    = "/start"
)

const (
	sosButtonText   = "OPEN ALARM"
	chatNotLinked   = "This chat is not linked to any community yet. Ask an administrator to register it."
	registeredReply = "%s, your Telegram ID <b>%s</b> has been noted. An administrator will add you to the community."
	welcomeReply    = "Hello %s! I am the community alarm bot. Write <b>SOS</b> in your community group to raise an alert, or <b>MIREGISTRO</b> here to share your ID."
	sosReply        = "🚨 %s, tap the button below to send the alert for <b>%s</b>."
	sosReplyNoApp   = "🚨 %s, your SOS for <b>%s</b> was noted. Submit the alert within the next minutes to be identified as the reporter."
)

// HandleUpdate reacts to one inbound bot update. Unknown messages are ignored.
func (s *Service) HandleUpdate(ctx context.Context, update notifications.Update) error {
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil || msg.From == nil {
		return nil
	}

	switch parseCommand(msg.Text) {
	case CommandSOS:
		return s.handleSOS(ctx, msg)
	case CommandRegister:
		return s.handleRegister(ctx, msg)
	case CommandStart:
		if msg.Chat.Type != "private" {
			return nil
		}
		return s.bot.Send(ctx, msg.Chat.ID, fmt.Sprintf(welcomeReply, html.EscapeString(displayName(msg.From))))
	default:
		return nil
	}
}

func (s *Service) handleSOS(ctx context.Context, msg *notifications.Message) error {
	community, err := s.SignalIntent(ctx, msg.Chat.ID, msg.From.ID)
	if apperror.Is(err, apperror.KindNotFound) {
		logrus.Infof("SOS from unlinked chat %s", msg.Chat.ID.Normalize())
		return s.bot.Send(ctx, msg.Chat.ID, chatNotLinked)
	}
	if err != nil {
		return err
	}

	name := html.EscapeString(displayName(msg.From))
	if s.config == nil || s.config.WebAppURL == "" {
		return s.bot.Send(ctx, msg.Chat.ID, fmt.Sprintf(sosReplyNoApp, name, html.EscapeString(community.Name)))
	}

	link, err := webAppLink(s.config.WebAppURL, community.Name, msg.From.ID)
	if err != nil {
		return fmt.Errorf("failed to build web app link: %w", err)
	}
	return s.bot.SendLinkButton(ctx, msg.Chat.ID, fmt.Sprintf(sosReply, name, html.EscapeString(community.Name)), sosButtonText, link)
}

func (s *Service) handleRegister(ctx context.Context, msg *notifications.Message) error {
	id := msg.From.ID.Normalize()
	logrus.WithField("chat", msg.Chat.ID.Normalize()).Infof("Registration requested by %s (%s)", displayName(msg.From), id)
	return s.bot.Send(ctx, msg.Chat.ID, fmt.Sprintf(registeredReply, html.EscapeString(displayName(msg.From)), id))
}

// parseCommand returns the lowercased command word, with any @botname suffix removed
func parseCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	command := strings.ToLower(fields[0])
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}
	return command
}

func webAppLink(base, community string, userID models.ExternalID) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("community", community)
	q.Set("user_id", userID.Normalize())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func displayName(user *notifications.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	switch {
	case name != "":
		return name
	case user.Username != "":
		return "@" + user.Username
	default:
		return user.ID.Normalize()
	}
}
