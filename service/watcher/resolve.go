package watcher

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"workchat/logger"
	"workchat/model"
	"workchat/service/socket"
)

// Handle resolves one change event to its target groups and hands it to
// the dispatcher. Resolution failures drop the event with a warning; they
// never stop the watch loop.
func (w *Watcher) Handle(ctx context.Context, ev *ChangeEvent) {
	switch ev.Collection {
	case model.CollChats:
		w.handleChat(ctx, ev)
	case model.CollMessages:
		w.handleMessage(ctx, ev)
	case model.CollUsers:
		w.handleUser(ev)
	default:
		logger.Warnf("[watcher] change on unwatched collection %q", ev.Collection)
	}
}

func (w *Watcher) handleChat(ctx context.Context, ev *ChangeEvent) {
	if ev.Op == OpDelete {
		// Member list is gone with the document; fall back to a broadcast
		// keyed by id.
		w.out.Dispatch(socket.EventChatsDelete, deletedDoc{ID: ev.DocID}, socket.Broadcast())
		return
	}

	chat := ev.Chat
	if len(chat.Users) == 0 {
		fetched, err := w.store.ChatByID(ctx, ev.DocID)
		if err != nil {
			logger.Warnf("[watcher] chat %s member lookup failed, event dropped: %v", ev.DocID.Hex(), err)
			return
		}
		chat = fetched
	}

	// Expand the embedded member references to profiles for display;
	// expansion failure falls back to the raw document.
	if members, err := w.store.UsersByIDs(ctx, chat.Users); err != nil {
		logger.Warnf("[watcher] chat %s member expansion failed: %v", ev.DocID.Hex(), err)
	} else {
		chat.Members = members
	}

	w.out.Dispatch(socket.EventChatsChange, chat, userTargets(chat.Users)...)
}

func (w *Watcher) handleMessage(ctx context.Context, ev *ChangeEvent) {
	if ev.Op == OpDelete {
		w.out.Dispatch(socket.EventMessagesDelete, deletedDoc{ID: ev.DocID}, socket.Broadcast())
		return
	}

	msg := ev.Message
	chat, err := w.store.ChatByID(ctx, msg.Chat)
	if err != nil {
		// Raced a chat deletion, or the store hiccuped; either way the
		// event is dropped, never propagated as fatal.
		logger.Warnf("[watcher] message %s parent chat %s unavailable, event dropped: %v",
			ev.DocID.Hex(), msg.Chat.Hex(), err)
		return
	}

	w.out.Dispatch(socket.EventMessagesChange, msg, userTargets(chat.Users)...)
	if ev.Op == OpInsert {
		w.out.Dispatch(socket.EventMessageReceived, msg, socket.RoomTarget(msg.Chat.Hex()))
	}
}

func (w *Watcher) handleUser(ev *ChangeEvent) {
	// Profile changes are globally visible.
	if ev.Op == OpDelete {
		w.out.Dispatch(socket.EventUsersDelete, deletedDoc{ID: ev.DocID}, socket.Broadcast())
		return
	}
	w.out.Dispatch(socket.EventUsersChange, ev.User, socket.Broadcast())
}

func userTargets(ids []primitive.ObjectID) []socket.Target {
	out := make([]socket.Target, 0, len(ids))
	for _, id := range ids {
		out = append(out, socket.UserTarget(id.Hex()))
	}
	return out
}
