package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyMessage is returned when a send carries neither text nor an image.
	ErrEmptyMessage = errors.New("message has no text or image")
	// ErrSendInFlight is returned while another send is awaiting its reply.
	ErrSendInFlight = errors.New("another message is being sent")
)

// SendRequest is one user send action.
type SendRequest struct {
	Text  string
	Image *ImageData
	Edit  bool // edit the image instead of analyzing it
}

// ChatOrchestrator turns a send action into one remote request and records both sides of the
// exchange in today's conversation.
type ChatOrchestrator struct {
	state         *AppState
	conversations *ConversationStore
	remote        RemoteService
	now           func() time.Time
	logger        *zap.Logger

	idMu   sync.Mutex
	lastID int64
}

// NewChatOrchestrator creates an orchestrator. now defaults to time.Now.
func NewChatOrchestrator(state *AppState, conversations *ConversationStore, remote RemoteService, now func() time.Time, logger *zap.Logger) *ChatOrchestrator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatOrchestrator{
		state:         state,
		conversations: conversations,
		remote:        remote,
		now:           now,
		logger:        logger,
	}
}

// nextID returns a unix-millisecond id, strictly increasing within the process.
func (o *ChatOrchestrator) nextID() string {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	id := o.now().UnixMilli()
	if id <= o.lastID {
		id = o.lastID + 1
	}
	o.lastID = id
	return strconv.FormatInt(id, 10)
}

// NeedsGrounding reports whether prompt asks for fresh or local information.
func NeedsGrounding(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, kw := range GroundingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// BuildHistory converts stored messages into chat turns. Image parts precede text parts and
// messages with neither are dropped.
func BuildHistory(messages []Message) []ChatTurn {
	turns := make([]ChatTurn, 0, len(messages))
	for _, m := range messages {
		var parts []ChatPart
		if m.Image != nil {
			img := *m.Image
			parts = append(parts, ChatPart{Image: &img})
		}
		if m.Text != "" {
			parts = append(parts, ChatPart{Text: m.Text})
		}
		if len(parts) == 0 {
			continue
		}
		role := "model"
		if m.Sender == SenderUser {
			role = "user"
		}
		turns = append(turns, ChatTurn{Role: role, Parts: parts})
	}
	return turns
}

// Send records the user message in today's conversation, asks the remote service and records
// the reply. Remote failures become one localized error reply and are not returned.
func (o *ChatOrchestrator) Send(ctx context.Context, req SendRequest) (*Message, error) {
	if strings.TrimSpace(req.Text) == "" && req.Image == nil {
		return nil, ErrEmptyMessage
	}
	if !o.state.BeginSend() {
		return nil, ErrSendInFlight
	}
	defer o.state.EndSend()

	today := o.state.Today()
	if o.state.SelectedDate() != today {
		if err := o.state.SelectDate(today); err != nil {
			return nil, err
		}
	}

	prior, err := o.conversations.Get(today)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}
	user := Message{ID: o.nextID(), Text: req.Text, Sender: SenderUser, Image: req.Image}
	if err := o.conversations.Append(today, user); err != nil {
		return nil, err
	}

	reply, err := o.respond(ctx, prior, user, req)
	if err != nil {
		o.logger.Error("chat request failed", zap.Error(err), zap.String("date", today))
		reply = Message{Text: o.state.Translate("errorMessage")}
	}
	reply.ID = o.nextID()
	reply.Sender = SenderAI
	if err := o.conversations.Append(today, reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (o *ChatOrchestrator) respond(ctx context.Context, prior []Message, user Message, req SendRequest) (Message, error) {
	switch {
	case req.Image != nil && !req.Edit:
		text, err := o.remote.AnalyzeImage(ctx, req.Text, *req.Image)
		if err != nil {
			return Message{}, err
		}
		return Message{Text: text}, nil

	case req.Image != nil:
		edited, err := o.remote.EditImage(ctx, req.Text, *req.Image)
		if err != nil {
			return Message{}, err
		}
		caption := req.Text
		if caption == "" {
			caption = o.state.Translate("editedImageText")
		}
		return Message{Text: caption, Image: edited}, nil

	default:
		history := BuildHistory(append(prior, user))
		reply, err := o.remote.Chat(ctx, history, req.Text, NeedsGrounding(req.Text), o.state.Location())
		if err != nil {
			return Message{}, err
		}
		if reply == nil {
			return Message{}, errors.New("empty chat reply")
		}
		return Message{Text: reply.Text, Sources: reply.Sources}, nil
	}
}
