package messaging

// Wire event names, shared with the messaging server.
const (
	// Outbound
	evAuth            = "auth"
	evJoinRoom        = "join-room"
	evLeaveRoom       = "leave-room"
	evSendMessage     = "send-message"
	evTypingStart     = "typing-start"
	evTypingStop      = "typing-stop"
	evMessageReaction = "message-reaction"

	// Inbound
	evRoomJoined      = "room-joined"
	evRoomLeft        = "room-left"
	evNewMessage      = "new-message"
	evUserJoined      = "user-joined-room"
	evUserLeft        = "user-left-room"
	evReactionUpdated = "message-reaction-updated"
)

// SenderRole identifies who authored a message.
type SenderRole string

const (
	RoleUser      SenderRole = "user"      // the local end-user
	RoleFriend    SenderRole = "friend"    // another participant
	RoleAssistant SenderRole = "assistant" // automated styling assistant
	RoleSystem    SenderRole = "system"    // server-generated notices
)

// MessageKind identifies the payload shape of a message.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindProduct MessageKind = "product"
	KindImage   MessageKind = "image"
	KindVoice   MessageKind = "voice"
	KindSystem  MessageKind = "system"
)

// ReactionKind is the closed set of reactions a message can receive.
type ReactionKind string

const (
	ReactionLike ReactionKind = "like"
	ReactionLove ReactionKind = "love"
	ReactionFire ReactionKind = "fire"
	ReactionClap ReactionKind = "clap"
)

// ValidReaction reports whether k is one of the supported reaction kinds.
func ValidReaction(k ReactionKind) bool {
	switch k {
	case ReactionLike, ReactionLove, ReactionFire, ReactionClap:
		return true
	}
	return false
}

// Product is the denormalized catalog payload attached to product messages.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Category string  `json:"category"`
}

// Reaction holds the aggregate count for one reaction kind plus whether the
// local user contributed to it.
type Reaction struct {
	Count   int  `json:"count"`
	Reacted bool `json:"reacted"`
}

// Message is the immutable wire entity for room chat.
type Message struct {
	ID         string                    `json:"id"`
	Text       string                    `json:"text"`
	SenderRole SenderRole                `json:"sender_role"`
	SenderName string                    `json:"sender_name"`
	Avatar     string                    `json:"avatar,omitempty"`
	Timestamp  string                    `json:"timestamp"` // RFC 3339
	RoomID     string                    `json:"room_id"`
	Kind       MessageKind               `json:"kind"`
	Product    *Product                  `json:"product,omitempty"`
	Reactions  map[ReactionKind]Reaction `json:"reactions,omitempty"`
}

// TypingUser is the transient typing-presence signal. Never persisted.
type TypingUser struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	RoomID   string `json:"room_id"`
}

// RoomEvent is the payload for user-joined-room / user-left-room events.
type RoomEvent struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// ReactionUpdate is the payload for message-reaction-updated events.
type ReactionUpdate struct {
	MessageID string                    `json:"message_id"`
	RoomID    string                    `json:"room_id"`
	Kind      ReactionKind              `json:"kind"`
	Reactions map[ReactionKind]Reaction `json:"reactions"`
}
