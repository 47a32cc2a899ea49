package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/ports/adapter"
)

var _ adapter.ChannelGate = (*ChannelGate)(nil)

// ChannelGate manages membership of the paid channel through the Bot API.
//
// Grant mints a fresh single-use invite link and DMs it to the user; the link
// dies after one join, so it cannot be shared. Revoke bans and immediately
// unbans, which kicks the member while leaving them free to purchase again.
type ChannelGate struct {
	bot       *tgbotapi.BotAPI
	channelID int64
	log       *zerolog.Logger
}

func NewChannelGate(bot *tgbotapi.BotAPI, channelID int64, logger *zerolog.Logger) *ChannelGate {
	l := logger.With().Str("component", "ChannelGate").Logger()
	return &ChannelGate{bot: bot, channelID: channelID, log: &l}
}

func (g *ChannelGate) Grant(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	link, err := g.createInviteLink()
	if err != nil {
		return mapAPIError("create invite link", err)
	}

	msg := tgbotapi.NewMessage(userID, "Your access is ready. Join here: "+link)
	if _, err := g.bot.Send(msg); err != nil {
		// The link is minted but undeliverable (user blocked the bot or never
		// started it). The caller retries; a stale single-use link is harmless.
		return mapAPIError("send invite", err)
	}

	g.log.Info().Int64("user_id", userID).Msg("invite link delivered")
	return nil
}

func (g *ChannelGate) Revoke(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	member := tgbotapi.ChatMemberConfig{ChatID: g.channelID, UserID: userID}
	if _, err := g.bot.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		if isAlreadyDone(err) {
			return nil
		}
		return mapAPIError("ban member", err)
	}
	// Lift the ban right away so the user can re-join after paying again.
	unban := tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true}
	if _, err := g.bot.Request(unban); err != nil && !isAlreadyDone(err) {
		return mapAPIError("unban member", err)
	}

	g.log.Info().Int64("user_id", userID).Msg("member removed from channel")
	return nil
}

func (g *ChannelGate) createInviteLink() (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: g.channelID},
		MemberLimit: 1,
	}
	resp, err := g.bot.Request(cfg)
	if err != nil {
		return "", err
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	return link.InviteLink, nil
}

// isAlreadyDone reports whether the API rejected an operation that had
// already taken effect, which for a gate is success.
func isAlreadyDone(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Message {
	case "Bad Request: USER_NOT_PARTICIPANT", "Bad Request: user not found", "Bad Request: PARTICIPANT_ID_INVALID":
		return true
	}
	return false
}

func mapAPIError(op string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 || apiErr.Code == 403 {
			return fmt.Errorf("%s: %s: %w", op, apiErr.Message, domain.ErrAuth)
		}
		if apiErr.Code >= 500 || apiErr.Code == 429 {
			return fmt.Errorf("%s: %s: %w", op, apiErr.Message, domain.ErrNetwork)
		}
		return fmt.Errorf("%s: %s: %w", op, apiErr.Message, domain.ErrOperationFailed)
	}
	// Transport-level failure, retryable.
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrNetwork)
}
