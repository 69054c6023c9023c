package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/chat"
	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
	"github.com/yudapramadita/lokapasar/internal/session"
	"github.com/yudapramadita/lokapasar/internal/store"
	"github.com/yudapramadita/lokapasar/internal/transaction"
)

type WSHandler struct {
	Store    *store.Store
	Hub      *realtime.Hub
	Bus      realtime.Subscriber
	Sessions *session.Manager
	Machine  *transaction.Machine
	Log      *zap.Logger
}

func NewWSHandler(st *store.Store, hub *realtime.Hub, bus realtime.Subscriber, sessions *session.Manager, machine *transaction.Machine, log *zap.Logger) *WSHandler {
	return &WSHandler{Store: st, Hub: hub, Bus: bus, Sessions: sessions, Machine: machine, Log: log}
}

type wsControl struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Handle runs one websocket connection: it scopes the user's engine set to
// the socket lifetime and translates UI control messages (room enter/leave,
// app foreground) into coordinator and engine calls. Every acquired resource
// is released via defer so an errored read loop tears down the same way a
// clean leave does.
func (h *WSHandler) Handle(c *websocket.Conn) {
	userID := c.Query("user_id")
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		h.Log.Warn("ws: invalid user_id", zap.String("user_id", userID))
		_ = c.Close()
		return
	}

	ctx := context.Background()

	sess, err := h.Sessions.Attach(ctx, userUUID)
	if err != nil {
		h.Log.Error("ws: attach session", zap.Error(err))
		_ = c.Close()
		return
	}
	defer h.Sessions.Detach(userUUID)

	client := &realtime.Client{
		ID:     uuid.New().String(),
		UserID: userUUID,
		Send:   make(chan []byte, 256),
	}
	h.Hub.RegisterClient(client)
	defer h.Hub.UnregisterClient(client)

	// per-connection room state, always released on exit
	var releaseActive func()
	var stopWatch func()
	var room *chat.Room
	leaveRoom := func() {
		if stopWatch != nil {
			stopWatch()
			stopWatch = nil
		}
		if room != nil {
			room.Close()
			sess.SetRoom(nil)
			room = nil
		}
		if releaseActive != nil {
			releaseActive()
			releaseActive = nil
		}
	}
	defer leaveRoom()

	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// initial badge push so the client renders without waiting for a change
	h.Hub.SendToUser(userUUID, map[string]interface{}{
		"type":  "unread_badge",
		"badge": sess.Unread.Snapshot(),
	})
	h.Hub.SendToUser(userUUID, map[string]interface{}{
		"type":  "notification_badge",
		"badge": sess.Notify.Badge(),
	})

	for {
		var ctl wsControl
		if err := c.ReadJSON(&ctl); err != nil {
			return
		}

		switch ctl.Type {
		case "enter_room":
			convID, err := uuid.Parse(ctl.ConversationID)
			if err != nil {
				continue
			}
			leaveRoom()
			releaseActive = sess.Active.Activate(convID)
			// entering a room reads it immediately
			if err := sess.Unread.MarkAsRead(ctx, convID); err != nil {
				h.Log.Warn("ws: mark read on enter", zap.Error(err))
			}
			room = h.openRoom(ctx, sess, userUUID, convID)
			if room != nil {
				sess.SetRoom(room)
			}
			stopWatch = h.watchTransaction(ctx, userUUID, convID)

		case "leave_room":
			leaveRoom()

		case "foreground":
			sess.Unread.NotifyForeground(ctx)
			sess.Notify.Refresh(ctx)

		case "pong":
			// keepalive, nothing to do
		}
	}
}

// openRoom builds the room's message view, feeds it from the realtime
// listener, and re-runs the needs-read check after every list change. The
// check catches the message that lands between the mark-read on entry and the
// listener going live, or while the room stays open, so the counterparty's
// read receipt never sticks on unread.
func (h *WSHandler) openRoom(ctx context.Context, sess *session.Session, userUUID, convID uuid.UUID) *chat.Room {
	syncRead := func(v *chat.View) {
		h.Hub.SendToUser(userUUID, map[string]interface{}{
			"type":    "room_messages",
			"entries": v.Entries(),
			"conv_id": convID.String(),
		})
		if v.NeedsRead() && sess.Active.Is(convID) {
			go func() {
				if err := sess.Unread.MarkAsRead(context.Background(), convID); err != nil {
					h.Log.Warn("ws: mark read on room change", zap.Error(err))
				}
			}()
		}
	}

	room, err := chat.OpenRoom(ctx, h.Bus, convID, userUUID, syncRead)
	if err != nil {
		h.Log.Warn("ws: open room feed", zap.Error(err))
		return nil
	}

	msgs, err := h.Store.MessagesForConversation(ctx, convID)
	if err != nil {
		h.Log.Warn("ws: seed room view", zap.Error(err))
	} else {
		room.View.MergeServer(msgs)
	}
	syncRead(room.View)
	return room
}

// watchTransaction lazily creates the workflow for a listing-backed room and
// relays its realtime updates to the user. Returns the stop func (may be nil
// when the room has no listing).
func (h *WSHandler) watchTransaction(ctx context.Context, userUUID, convID uuid.UUID) func() {
	conv, err := h.Store.ConversationByID(ctx, convID)
	if err != nil || conv.Listing == nil || !conv.HasParticipant(userUUID) {
		return nil
	}

	t, err := h.Machine.EnsureForConversation(ctx, conv, conv.Listing)
	if err != nil || t == nil {
		if err != nil {
			h.Log.Warn("ws: ensure transaction", zap.Error(err))
		}
		return nil
	}

	h.Hub.SendToUser(userUUID, map[string]interface{}{
		"type":        "transaction",
		"transaction": t,
	})

	stop, err := h.Machine.Watch(ctx, t.ID, func(updated models.Transaction) {
		h.Hub.SendToUser(userUUID, map[string]interface{}{
			"type":        "transaction",
			"transaction": updated,
		})
	})
	if err != nil {
		h.Log.Warn("ws: watch transaction", zap.Error(err))
		return nil
	}
	return stop
}
