package data

// Role classifies a participant. Staff roles may create and close channels;
// patients may only converse inside channels opened for them.
type Role string

const (
	RolePatient     Role = "patient"
	RoleCoordinator Role = "coordinator"
	RoleDoctor      Role = "doctor"
)

// Staff reports whether the role belongs to hospital staff.
func (r Role) Staff() bool {
	return r == RoleCoordinator || r == RoleDoctor
}

// Participant is a channel member with denormalized display fields.
type Participant struct {
	UserID      string `bson:"user_id" json:"user_id"`
	DisplayName string `bson:"display_name" json:"display_name"`
	AvatarURL   string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Role        Role   `bson:"role" json:"role"`
}

// ChannelStatus is the lifecycle state of a channel.
type ChannelStatus string

const (
	StatusActive ChannelStatus = "active"
	StatusClosed ChannelStatus = "closed"
)

// ChannelMeta carries the appointment/hospital context and the lifecycle
// transition records.
type ChannelMeta struct {
	AppointmentID string `bson:"appointment_id,omitempty" json:"appointment_id,omitempty"`
	HospitalID    string `bson:"hospital_id,omitempty" json:"hospital_id,omitempty"`
	InitiatorRole Role   `bson:"initiator_role,omitempty" json:"initiator_role,omitempty"`
	ClosedAt      int64  `bson:"closed_at,omitempty" json:"closed_at,omitempty"`
	ClosedBy      string `bson:"closed_by,omitempty" json:"closed_by,omitempty"`
	ReopenedAt    int64  `bson:"reopened_at,omitempty" json:"reopened_at,omitempty"`
	ReopenedBy    string `bson:"reopened_by,omitempty" json:"reopened_by,omitempty"`
}

// Channel maps to the channels collection. Unread holds the per-user badge
// count; LastMessage is a denormalized preview for list views.
type Channel struct {
	ID           string         `bson:"_id" json:"id"`
	Participants []Participant  `bson:"participants" json:"participants"`
	Status       ChannelStatus  `bson:"status" json:"status"`
	Meta         ChannelMeta    `bson:"meta" json:"meta"`
	LastMessage  *Message       `bson:"last_message,omitempty" json:"last_message,omitempty"`
	Unread       map[string]int `bson:"unread" json:"unread"`
	CreatedAt    int64          `bson:"created_at" json:"created_at"`
}

// Participant returns the member with the given user id, if present.
func (c *Channel) Participant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// MessageKind separates human messages from lifecycle markers.
type MessageKind string

const (
	KindUser   MessageKind = "user"
	KindSystem MessageKind = "system"
)

// Custom types attached to system messages.
const (
	SystemCreated  = "system_created"
	SystemClosed   = "system_closed"
	SystemReopened = "system_reopened"
)

// Message maps to the messages collection. Seq is assigned by the store at
// append time and is monotonic and gapless within a channel; it is the
// primary ordering key. CreatedAt is store-observed epoch milliseconds,
// non-decreasing per channel together with Seq.
type Message struct {
	ChannelID  string      `bson:"channel_id" json:"channel_id"`
	Seq        int64       `bson:"seq" json:"seq"`
	Kind       MessageKind `bson:"kind" json:"kind"`
	Body       string      `bson:"body" json:"body"`
	CustomType string      `bson:"custom_type,omitempty" json:"custom_type,omitempty"`
	SenderID   string      `bson:"sender_id,omitempty" json:"sender_id,omitempty"`
	CreatedAt  int64       `bson:"created_at" json:"created_at"`
	ReadBy     []string    `bson:"read_by,omitempty" json:"read_by,omitempty"`
}

// ReadByUser reports whether the given user has acknowledged this message.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ListDirection selects which side of the cursor a message page covers.
type ListDirection string

const (
	// DirectionOlder returns messages strictly before the cursor, newest first.
	DirectionOlder ListDirection = "older"
	// DirectionNewer returns messages strictly after the cursor, oldest first.
	DirectionNewer ListDirection = "newer"
)

// MessagePage is one page of messages plus a has-more marker computed from
// the match count before truncation.
type MessagePage struct {
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
}
