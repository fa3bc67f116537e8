package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cofounder/internal/common"
)

// Client events.
const (
	EventTypingStart     = "typing_start"
	EventTypingStop      = "typing_stop"
	EventMessageStatus   = "message_status"
	EventAgentStatus     = "agent_status"
	EventDashboardUpdate = "dashboard_update"
	EventApprovalRequest = "approval_request"
	EventTaskProgress    = "task_progress"
	EventNotification    = "notification"
)

// Server events.
const (
	EventAgentTyping          = "agent_typing"
	EventMessageStatusUpdate  = "message_status_update"
	EventAgentStatusUpdate    = "agent_status_update"
	EventDashboardRefresh     = "dashboard_refresh"
	EventApprovalNotification = "approval_notification"
	EventTaskProgressUpdate   = "task_progress_update"
	EventNewNotification      = "new_notification"
)

// Message is a frame sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// inbound is a frame received from a client. Data is decoded per event.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type typingData struct {
	AgentName   string `json:"agentName"`
	IsTyping    bool   `json:"isTyping"`
	MessageType string `json:"messageType,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type messageStatusData struct {
	MessageID any    `json:"messageId"`
	Status    string `json:"status"`
	Timestamp any    `json:"timestamp"`
	UserID    string `json:"userId"`
}

type agentStatusData struct {
	AgentName   string `json:"agentName"`
	Status      string `json:"status"`
	CurrentTask string `json:"currentTask,omitempty"`
	Timestamp   string `json:"timestamp"`
	UserID      string `json:"userId,omitempty"`
}

type dashboardUpdate struct {
	Widget     string `json:"widget"`
	UpdateData any    `json:"updateData"`
}

type dashboardData struct {
	Widget    string `json:"widget"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId,omitempty"`
}

type approvalData struct {
	Type        string `json:"type"`
	ItemID      any    `json:"itemId"`
	Description string `json:"description"`
	AgentName   string `json:"agentName"`
	Timestamp   string `json:"timestamp"`
	UserID      string `json:"userId"`
}

type taskProgressData struct {
	TaskID    any    `json:"taskId"`
	Progress  any    `json:"progress"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
}

type notificationData struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Level     string `json:"level"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId,omitempty"`
	Read      bool   `json:"read"`
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// NotificationID returns an id of the form notification_<unix ms>_<hex>.
func NotificationID(now time.Time) (string, error) {
	suffix, err := common.MakeRandHexString(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("notification_%d_%s", now.UnixMilli(), suffix), nil
}

// translate maps a client event from userID onto the event other clients
// receive. Unknown events are reported as errors.
func translate(userID string, in inbound, now time.Time) (Message, error) {
	decode := func(v any) error {
		if len(in.Data) == 0 || string(in.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(in.Data, v); err != nil {
			return fmt.Errorf("invalid %s payload: %w", in.Event, err)
		}
		return nil
	}

	switch in.Event {
	case EventTypingStart, EventTypingStop:
		var d typingData
		if err := decode(&d); err != nil {
			return Message{}, err
		}
		out := typingData{AgentName: d.AgentName, UserID: userID}
		if in.Event == EventTypingStart {
			out.IsTyping = true
			out.MessageType = d.MessageType
			if out.MessageType == "" {
				out.MessageType = "text"
			}
		}
		return Message{Event: EventAgentTyping, Data: out}, nil

	case EventMessageStatus:
		var d messageStatusData
		if err := decode(&d); err != nil {
			return Message{}, err
		}
		d.UserID = userID
		return Message{Event: EventMessageStatusUpdate, Data: d}, nil

	case EventAgentStatus:
		var d agentStatusData
		if err := decode(&d); err != nil {
			return Message{}, err
		}
		d.Timestamp = timestamp(now)
		d.UserID = userID
		return Message{Event: EventAgentStatusUpdate, Data: d}, nil

	case EventDashboardUpdate:
		var d dashboardUpdate
		if err := decode(&d); err != nil {
			return Message{}, err
		}
		return Message{Event: EventDashboardRefresh, Data: dashboardData{
			Widget:    d.Widget,
			Data:      d.UpdateData,
			Timestamp: timestamp(now),
			UserID:    userID,
		}}, nil

	case EventApprovalRequest:
		var d approvalData
		if err := decode(&d); err != nil {
			return Message{}, err
		}
		d.Timestamp = timestamp(now)
		d.UserID = userID
		return Message{Event: EventApprovalNotification, Data: d}, nil

	case EventTaskProgress:
		var d taskProgressData
		if err := decode(&d); err != nil {
			return Message{}, err
		}
		d.Timestamp = timestamp(now)
		d.UserID = userID
		return Message{Event: EventTaskProgressUpdate, Data: d}, nil

	case EventNotification:
		var d notificationData
		if err := decode(&d); err != nil {
			return Message{}, err
		}
		id, err := NotificationID(now)
		if err != nil {
			return Message{}, err
		}
		if d.Level == "" {
			d.Level = "info"
		}
		return Message{Event: EventNewNotification, Data: notificationData{
			ID:        id,
			Type:      d.Type,
			Title:     d.Title,
			Message:   d.Message,
			Level:     d.Level,
			Timestamp: timestamp(now),
			UserID:    userID,
		}}, nil
	}

	return Message{}, fmt.Errorf("unknown event %q", in.Event)
}
