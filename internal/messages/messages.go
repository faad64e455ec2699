package messages

import (
	"encoding/json"
	"fmt"
)

// MessageType represents the type of WebSocket message
type MessageType string

// Define constants for message types to prevent typos and provide better IDE support
const (
	// Server -> Client: Success message when websocket connection is established
	MessageTypeSuccess MessageType = "success"
	// Server -> Client: A notification for the connected user
	MessageTypeNotification MessageType = "notification"
	// Server -> Client: A new post on one of the user's team feeds
	MessageTypeAnnouncement MessageType = "announcement"

	// Server -> Client: Error message when something goes wrong
	MessageTypeError MessageType = "error"

	// Client -> Server: Ping message
	MessageTypePing MessageType = "ping"
	// Server -> Client: Pong message
	MessageTypePong MessageType = "pong"

	// Client -> Server and Server -> Client: User has become online
	MessageTypeTeammateOnline MessageType = "teammate_online"
)

// BaseMessage represents the common structure of all WebSocket messages
type BaseMessage struct {
	Type MessageType `json:"type" validate:"required"`
	// Using RawMessage to delay JSON parsing until we know the correct type
	RawPayload json.RawMessage `json:"payload"`
}

// SuccessPayload represents the payload for success messages
type SuccessPayload struct {
	Message string `json:"message"`
}

// SuccessMessage is a complete success message
type SuccessMessage struct {
	Type    MessageType    `json:"type"`
	Payload SuccessPayload `json:"payload"`
}

// NotificationPayload carries one in-app notification to the client
type NotificationPayload struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Priority  string `json:"priority"`
	ActionURL string `json:"action_url,omitempty"`
}

// NotificationMessage is a complete notification push message
type NotificationMessage struct {
	Type    MessageType         `json:"type"`
	Payload NotificationPayload `json:"payload"`
}

// AnnouncementPayload carries one team feed entry to the client
type AnnouncementPayload struct {
	TeamID  uint   `json:"team_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AnnouncementMessage is a complete announcement push message
type AnnouncementMessage struct {
	Type    MessageType         `json:"type"`
	Payload AnnouncementPayload `json:"payload"`
}

type ErrorPayload struct {
	Error string `json:"error" validate:"required"`
}

// ErrorMessage is a complete error message when something
// is not as expected or an error occurs and needs to be sent to the client
type ErrorMessage struct {
	Type    MessageType  `json:"type"`
	Payload ErrorPayload `json:"payload"`
}

// PingPayload represents the payload for ping messages
type PingPayload struct {
	Message string `json:"message"`
}

// PingMessage is a simple ping message with just the type
type PingMessage struct {
	Type    MessageType `json:"type"`
	Payload PingPayload `json:"payload"`
}

// PongPayload represents the payload for pong messages
type PongPayload struct {
	Message string `json:"message"`
}

// PongMessage is a complete pong message
type PongMessage struct {
	Type    MessageType `json:"type"`
	Payload PongPayload `json:"payload"`
}

// TeammateOnlinePayload represents the payload for teammate online messages
type TeammateOnlinePayload struct {
	TeammateID string `json:"teammate_id"`
}

// TeammateOnlineMessage is the message to notify that a teammate has come online
type TeammateOnlineMessage struct {
	Type    MessageType           `json:"type"`
	Payload TeammateOnlinePayload `json:"payload"`
}

// ParsedMessage is a union type of all possible message types
type ParsedMessage struct {
	Success               *SuccessMessage
	Pong                  *PongMessage
	Ping                  *PingMessage
	Notification          *NotificationMessage
	Announcement          *AnnouncementMessage
	TeammateOnlineMessage *TeammateOnlineMessage
	Error                 *ErrorMessage
}

// ParseMessage parses a raw message into a ParsedMessage
func ParseMessage(data []byte) (*ParsedMessage, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to parse base message: %w", err)
	}

	parsed := &ParsedMessage{}

	switch base.Type {
	case MessageTypeNotification:
		var msg NotificationMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		parsed.Notification = &msg
	case MessageTypeAnnouncement:
		var msg AnnouncementMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		parsed.Announcement = &msg
	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		parsed.Ping = &msg
	case MessageTypeTeammateOnline:
		var msg TeammateOnlineMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		parsed.TeammateOnlineMessage = &msg
	}

	return parsed, nil
}

// Helper functions to create typed messages

// NewSuccessMessage creates a new success message
func NewSuccessMessage(message string) SuccessMessage {
	return SuccessMessage{
		Type: MessageTypeSuccess,
		Payload: SuccessPayload{
			Message: message,
		},
	}
}

// NewNotificationMessage creates a new notification push message
func NewNotificationMessage(title, message, priority, actionURL string) NotificationMessage {
	return NotificationMessage{
		Type: MessageTypeNotification,
		Payload: NotificationPayload{
			Title:     title,
			Message:   message,
			Priority:  priority,
			ActionURL: actionURL,
		},
	}
}

// NewAnnouncementMessage creates a new announcement push message
func NewAnnouncementMessage(teamID uint, title, content string) AnnouncementMessage {
	return AnnouncementMessage{
		Type: MessageTypeAnnouncement,
		Payload: AnnouncementPayload{
			TeamID:  teamID,
			Title:   title,
			Content: content,
		},
	}
}

func NewErrorMessage(err string) ErrorMessage {
	return ErrorMessage{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Error: err,
		},
	}
}

// NewPongMessage creates a new pong message
func NewPongMessage() PongMessage {
	return PongMessage{
		Type: MessageTypePong,
		Payload: PongPayload{
			Message: "pong",
		},
	}
}

// NewTeammateOnlineMessage creates a new teammate online message
func NewTeammateOnlineMessage(teammateID string) TeammateOnlineMessage {
	return TeammateOnlineMessage{
		Type: MessageTypeTeammateOnline,
		Payload: TeammateOnlinePayload{
			TeammateID: teammateID,
		},
	}
}
