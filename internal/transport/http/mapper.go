package http

import (
	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/proto"
)

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Event: event.Kind.String(), RequestID: event.RequestID}

	switch event.Kind {
	case core.EventConnected:
		var user proto.UserData
		if event.User != nil {
			user = proto.UserData{
				ID:        event.User.UserID,
				FirstName: event.User.FirstName,
				LastName:  event.User.LastName,
			}
		}
		out.Data = proto.ConnectedData{User: user}
	case core.EventMessageSent:
		if event.Message != nil {
			out.Data = messageData(*event.Message)
		}
	case core.EventChatHistory, core.EventGroupChatHistory:
		messages := make([]proto.MessageData, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, messageData(msg))
		}
		out.Data = messages
	case core.EventError:
		if event.Error == nil {
			out.Data = proto.ErrorData{Code: core.ErrCodeInternal, Message: "unknown error"}
			break
		}
		out.Data = proto.ErrorData{Code: event.Error.Code, Message: event.Error.Message}
	}

	return out
}

func messageData(msg core.Message) proto.MessageData {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return proto.MessageData{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		Attachments:    attachments,
		CreatedAt:      msg.CreatedAt,
	}
}
