package lark

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/hr-approval/internal/application/port"
)

// ChannelName identifies Lark as a notification channel
const ChannelName = "lark"

// messageCreator is the part of the IM API the messenger needs
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.Messenger by sending IM text messages
type Messenger struct {
	messages      messageCreator
	receiveIDType string
	logger        *zap.Logger
}

// NewMessenger creates a messenger addressing recipients by Lark user_id
func NewMessenger(client *lark.Client, logger *zap.Logger) *Messenger {
	return newMessenger(client.Im.Message, logger)
}

func newMessenger(messages messageCreator, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages:      messages,
		receiveIDType: "user_id",
		logger:        logger,
	}
}

func (m *Messenger) Channel() string {
	return ChannelName
}

// SendText sends a plain text message and returns the Lark message ID
func (m *Messenger) SendText(ctx context.Context, userID, text string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}
	if text == "" {
		return "", fmt.Errorf("text cannot be empty")
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(m.receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(userID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", userID),
			zap.Error(err))
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", userID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Debug("Message sent", zap.String("message_id", messageID), zap.String("receive_id", userID))
	return messageID, nil
}

// Verify interface compliance
var _ port.Messenger = (*Messenger)(nil)
