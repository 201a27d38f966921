package watcher

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"workchat/model"
)

func changeDoc(t *testing.T, op string, id primitive.ObjectID, full any) bson.Raw {
	t.Helper()
	doc := bson.M{
		"operationType": op,
		"documentKey":   bson.M{"_id": id},
	}
	if full != nil {
		doc["fullDocument"] = full
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal change doc: %v", err)
	}
	return raw
}

func TestDecodeChatInsert(t *testing.T) {
	id := primitive.NewObjectID()
	member := primitive.NewObjectID()
	raw := changeDoc(t, "insert", id, model.Chat{
		ID: id, ChatName: "general", Users: []primitive.ObjectID{member},
	})

	ev, err := decodeChange(model.CollChats, raw)
	if err != nil {
		t.Fatalf("decodeChange: %v", err)
	}
	if ev.Op != OpInsert || ev.DocID != id {
		t.Fatalf("ev = %+v", ev)
	}
	if ev.Chat == nil || ev.Chat.ChatName != "general" || len(ev.Chat.Users) != 1 {
		t.Fatalf("chat = %+v", ev.Chat)
	}
}

func TestDecodeReplaceCollapsesToUpdate(t *testing.T) {
	id := primitive.NewObjectID()
	raw := changeDoc(t, "replace", id, model.User{ID: id, Name: "Ann"})

	ev, err := decodeChange(model.CollUsers, raw)
	if err != nil {
		t.Fatalf("decodeChange: %v", err)
	}
	if ev.Op != OpUpdate {
		t.Fatalf("op = %q, want update", ev.Op)
	}
	if ev.User == nil || ev.User.Name != "Ann" {
		t.Fatalf("user = %+v", ev.User)
	}
}

func TestDecodeDeleteCarriesOnlyID(t *testing.T) {
	id := primitive.NewObjectID()
	raw := changeDoc(t, "delete", id, nil)

	ev, err := decodeChange(model.CollMessages, raw)
	if err != nil {
		t.Fatalf("decodeChange: %v", err)
	}
	if ev.Op != OpDelete || ev.DocID != id {
		t.Fatalf("ev = %+v", ev)
	}
	if ev.Message != nil || ev.Chat != nil || ev.User != nil {
		t.Fatal("delete event should carry no document")
	}
}

func TestDecodeUnknownOperationIsSkipped(t *testing.T) {
	raw := changeDoc(t, "invalidate", primitive.NewObjectID(), nil)
	ev, err := decodeChange(model.CollChats, raw)
	if err != nil {
		t.Fatalf("decodeChange: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected nil event, got %+v", ev)
	}
}

func TestDecodeUpdateWithoutDocumentErrors(t *testing.T) {
	raw := changeDoc(t, "update", primitive.NewObjectID(), nil)
	if _, err := decodeChange(model.CollMessages, raw); err == nil {
		t.Fatal("expected error when updateLookup lost the document")
	}
}
