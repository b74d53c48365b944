package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mcdev12/tabletimer/go/internal/models"
	"github.com/mcdev12/tabletimer/go/internal/tables"
)

// MessageType is the "type" discriminator of every message on the live channel.
type MessageType string

const (
	MessageTypeStart    MessageType = "start"
	MessageTypePause    MessageType = "pause"
	MessageTypeReset    MessageType = "reset"
	MessageTypeResetAll MessageType = "resetAll"
	MessageTypeRename   MessageType = "rename"
	MessageTypeGoal     MessageType = "goal"

	MessageTypeState    MessageType = "state"
	MessageTypeRejected MessageType = "rejected"
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// TableID accepts a JSON number or a numeric string, so clients that read the
// id from a DOM attribute can send it unchanged.
type TableID int

func (id *TableID) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(strings.TrimSpace(s))
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return fmt.Errorf("table id %q: %w", string(data), err)
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return fmt.Errorf("table id %q is not an integer", string(data))
	}
	*id = TableID(int(f))
	return nil
}

// ClientMessage is a command sent by a control client.
type ClientMessage struct {
	Type    MessageType `json:"type"`
	TableID *TableID    `json:"tableId,omitempty"`
	Team    *string     `json:"team,omitempty"`
	Name    *string     `json:"name,omitempty"`
}

// DecodeClientMessage parses and shape-checks a client frame. Value checks
// (table exists, team is A or B) are left to the tables App.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case MessageTypeResetAll:
		return msg, nil
	case MessageTypeStart, MessageTypePause, MessageTypeReset:
		if msg.TableID == nil {
			return ClientMessage{}, fmt.Errorf("%w: %s requires tableId", ErrMalformedMessage, msg.Type)
		}
	case MessageTypeGoal:
		if msg.TableID == nil || msg.Team == nil {
			return ClientMessage{}, fmt.Errorf("%w: goal requires tableId and team", ErrMalformedMessage)
		}
	case MessageTypeRename:
		if msg.TableID == nil || msg.Team == nil || msg.Name == nil {
			return ClientMessage{}, fmt.Errorf("%w: rename requires tableId, team and name", ErrMalformedMessage)
		}
	default:
		return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
	return msg, nil
}

// TableCommands is what the gateway needs from the tables App.
type TableCommands interface {
	Start(tableID int) error
	Pause(tableID int) error
	Reset(tableID int) error
	ResetAll() error
	Rename(tableID int, team models.Team, name string) error
	Goal(tableID int, team models.Team) error
	Snapshot() tables.Snapshot
}

// Dispatch applies a decoded message. A non-nil error means the command was a
// no-op.
func Dispatch(app TableCommands, msg ClientMessage) error {
	switch msg.Type {
	case MessageTypeStart:
		return app.Start(int(*msg.TableID))
	case MessageTypePause:
		return app.Pause(int(*msg.TableID))
	case MessageTypeReset:
		return app.Reset(int(*msg.TableID))
	case MessageTypeResetAll:
		return app.ResetAll()
	case MessageTypeRename:
		return app.Rename(int(*msg.TableID), models.Team(*msg.Team), *msg.Name)
	case MessageTypeGoal:
		return app.Goal(int(*msg.TableID), models.Team(*msg.Team))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

// TableState is the wire form of one table. LastUpdated is Unix milliseconds.
type TableState struct {
	ID          int              `json:"id"`
	DurationMs  int64            `json:"durationMs"`
	RemainingMs int64            `json:"remainingMs"`
	Running     bool             `json:"running"`
	LastUpdated int64            `json:"lastUpdated"`
	TeamA       models.TeamState `json:"teamA"`
	TeamB       models.TeamState `json:"teamB"`
}

// StateMessage carries the full table registry.
type StateMessage struct {
	Type   MessageType  `json:"type"`
	Tables []TableState `json:"tables"`
}

// NewTableState converts a model table into its wire form.
func NewTableState(t models.Table) TableState {
	return TableState{
		ID:          t.ID,
		DurationMs:  t.DurationMs,
		RemainingMs: t.RemainingMs,
		Running:     t.Running,
		LastUpdated: t.LastUpdated.UnixMilli(),
		TeamA:       t.TeamA,
		TeamB:       t.TeamB,
	}
}

// NewStateMessage converts a snapshot into a state message.
func NewStateMessage(snapshot tables.Snapshot) StateMessage {
	states := make([]TableState, 0, len(snapshot.Tables))
	for _, t := range snapshot.Tables {
		states = append(states, NewTableState(t))
	}
	return StateMessage{Type: MessageTypeState, Tables: states}
}

// RejectedMessage tells the sender its command was a no-op. Only sent when
// rejection reporting is enabled.
type RejectedMessage struct {
	Type    MessageType `json:"type"`
	Command MessageType `json:"command"`
	TableID *int        `json:"tableId,omitempty"`
	Reason  string      `json:"reason"`
}

// NewRejectedMessage builds the reply for a command that did not apply.
func NewRejectedMessage(msg ClientMessage, reason error) RejectedMessage {
	rejected := RejectedMessage{
		Type:    MessageTypeRejected,
		Command: msg.Type,
		Reason:  reason.Error(),
	}
	if msg.TableID != nil {
		id := int(*msg.TableID)
		rejected.TableID = &id
	}
	return rejected
}
