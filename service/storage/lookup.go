package storage

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"workchat/model"
)

// ErrNotFound is returned when a referenced document no longer exists,
// e.g. a message whose parent chat was deleted concurrently.
var ErrNotFound = errors.New("document not found")

// Store exposes the auxiliary reads the watcher needs to resolve delivery
// targets. It never writes.
type Store struct {
	db *mongo.Database
}

func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// ChatByID loads a chat so the member list can be resolved.
func (s *Store) ChatByID(ctx context.Context, id primitive.ObjectID) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.Collection(model.CollChats).FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find chat %s", id.Hex())
	}
	return &chat, nil
}

// UsersByIDs loads the profiles for a member id list, used to expand the
// embedded references on chat events. Missing ids are simply absent from
// the result.
func (s *Store) UsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.db.Collection(model.CollUsers).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errors.Wrap(err, "find users")
	}
	defer cur.Close(ctx)

	var users []model.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, errors.Wrap(err, "decode users")
	}
	return users, nil
}
