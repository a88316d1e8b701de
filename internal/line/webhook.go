package line

import (
	"encoding/json"
	"fmt"
)

// Source identifies where an event came from. Exactly one concrete kind is
// resolved per event at the gateway boundary; the store only ever sees the
// single conversation id.
type Source interface {
	// ConversationID applies the fixed precedence: group id, else room id,
	// else the individual sender's user id.
	ConversationID() string
}

// GroupSource is a message sent in a group chat.
type GroupSource struct {
	GroupID string
	UserID  string
}

func (s GroupSource) ConversationID() string { return s.GroupID }

// RoomSource is a message sent in a multi-person room.
type RoomSource struct {
	RoomID string
	UserID string
}

func (s RoomSource) ConversationID() string { return s.RoomID }

// UserSource is a direct message from an individual user.
type UserSource struct {
	UserID string
}

func (s UserSource) ConversationID() string { return s.UserID }

// Event is one decoded text-message webhook event. Receipt time is not
// carried here; the pipeline stamps records with its own clock.
type Event struct {
	ReplyToken string
	Source     Source
	Text       string
}

type rawWebhook struct {
	Events []rawEvent `json:"events"`
}

type rawEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		Type    string `json:"type"`
		GroupID string `json:"groupId"`
		RoomID  string `json:"roomId"`
		UserID  string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// ParseWebhook decodes a webhook request body into text-message events.
// Non-message events, non-text messages and unknown source kinds are
// skipped, not errors.
func ParseWebhook(body []byte) ([]Event, error) {
	var raw rawWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body: %w", err)
	}

	events := make([]Event, 0, len(raw.Events))
	for _, re := range raw.Events {
		if re.Type != "message" || re.Message.Type != "text" {
			continue
		}
		src, ok := resolveSource(re)
		if !ok {
			continue
		}
		events = append(events, Event{
			ReplyToken: re.ReplyToken,
			Source:     src,
			Text:       re.Message.Text,
		})
	}
	return events, nil
}

func resolveSource(re rawEvent) (Source, bool) {
	switch re.Source.Type {
	case "group":
		return GroupSource{GroupID: re.Source.GroupID, UserID: re.Source.UserID}, true
	case "room":
		return RoomSource{RoomID: re.Source.RoomID, UserID: re.Source.UserID}, true
	case "user":
		return UserSource{UserID: re.Source.UserID}, true
	default:
		return nil, false
	}
}
