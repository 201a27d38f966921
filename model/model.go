package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names watched by the change feed.
const (
	CollChats    = "chats"
	CollMessages = "messages"
	CollUsers    = "users"
)

// User is a user profile document. Read-only from this subsystem.
type User struct {
	ID         primitive.ObjectID `bson:"_id" json:"_id"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	ProfilePic string             `bson:"profilePic" json:"profilePic,omitempty"`
}

// Chat is a conversation document. Users carries the member user ids;
// Members is only populated when the watcher expands the references for
// delivery.
type Chat struct {
	ID            primitive.ObjectID   `bson:"_id" json:"_id"`
	ChatName      string               `bson:"chatName" json:"chatName,omitempty"`
	IsGroupChat   bool                 `bson:"isGroupChat" json:"isGroupChat"`
	Users         []primitive.ObjectID `bson:"users" json:"users"`
	GroupAdmin    *primitive.ObjectID  `bson:"groupAdmin,omitempty" json:"groupAdmin,omitempty"`
	LatestMessage *primitive.ObjectID  `bson:"latestMessage,omitempty" json:"latestMessage,omitempty"`

	Members []User `bson:"-" json:"members,omitempty"`
}

// Message is a chat message document. Chat references the parent chat.
type Message struct {
	ID      primitive.ObjectID   `bson:"_id" json:"_id"`
	Sender  primitive.ObjectID   `bson:"sender" json:"sender"`
	Content string               `bson:"content" json:"content"`
	Chat    primitive.ObjectID   `bson:"chat" json:"chat"`
	ReadBy  []primitive.ObjectID `bson:"readBy,omitempty" json:"readBy,omitempty"`
}
