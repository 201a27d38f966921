package watcher

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"workchat/model"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent is one normalized mutation from the store. Exactly one of
// Chat/Message/User is set for insert/update depending on Collection; for
// delete only DocID survives.
type ChangeEvent struct {
	Collection string
	Op         Op
	DocID      primitive.ObjectID

	Chat    *model.Chat
	Message *model.Message
	User    *model.User
}

// rawChange mirrors the change-stream document shape the store emits.
type rawChange struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw `bson:"fullDocument,omitempty"`
}

// decodeChange turns a raw change-stream document into a typed event.
// `replace` collapses into update. Unknown operation kinds (drop,
// invalidate, rename) return a nil event; the stream error path handles
// their consequences.
func decodeChange(collection string, raw bson.Raw) (*ChangeEvent, error) {
	var rc rawChange
	if err := bson.Unmarshal(raw, &rc); err != nil {
		return nil, errors.Wrap(err, "decode change")
	}

	ev := &ChangeEvent{Collection: collection, DocID: rc.DocumentKey.ID}
	switch rc.OperationType {
	case "insert":
		ev.Op = OpInsert
	case "update", "replace":
		ev.Op = OpUpdate
	case "delete":
		ev.Op = OpDelete
		return ev, nil
	default:
		return nil, nil
	}

	if len(rc.FullDocument) == 0 {
		// updateLookup raced a delete; nothing deliverable remains.
		return nil, errors.Errorf("%s %s without full document", collection, rc.OperationType)
	}

	switch collection {
	case model.CollChats:
		ev.Chat = &model.Chat{}
		if err := bson.Unmarshal(rc.FullDocument, ev.Chat); err != nil {
			return nil, errors.Wrap(err, "decode chat document")
		}
	case model.CollMessages:
		ev.Message = &model.Message{}
		if err := bson.Unmarshal(rc.FullDocument, ev.Message); err != nil {
			return nil, errors.Wrap(err, "decode message document")
		}
	case model.CollUsers:
		ev.User = &model.User{}
		if err := bson.Unmarshal(rc.FullDocument, ev.User); err != nil {
			return nil, errors.Wrap(err, "decode user document")
		}
	default:
		return nil, errors.Errorf("unwatched collection %q", collection)
	}
	return ev, nil
}

// deletedDoc is the payload of `<collection> delete` events: only the id,
// since the member list is no longer available after the fact.
type deletedDoc struct {
	ID primitive.ObjectID `json:"_id"`
}
