package telegram

// User is a Telegram account, also used for the authenticated mini-app
// user carried in init data.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot,omitempty"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat identifies a chat or channel.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// Contact is a shared phone contact.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	UserID      int64  `json:"user_id,omitempty"`
}

// Message is an incoming bot message. Only the fields the funnel reads
// are mapped.
type Message struct {
	MessageID int64    `json:"message_id"`
	From      *User    `json:"from,omitempty"`
	Chat      Chat     `json:"chat"`
	Date      int64    `json:"date"`
	Text      string   `json:"text,omitempty"`
	Contact   *Contact `json:"contact,omitempty"`
}

// Chat member statuses.
const (
	MemberStatusCreator       = "creator"
	MemberStatusAdministrator = "administrator"
	MemberStatusMember        = "member"
	MemberStatusRestricted    = "restricted"
	MemberStatusLeft          = "left"
	MemberStatusKicked        = "kicked"
)

// ChatMember is a user's membership state in a chat.
type ChatMember struct {
	Status string `json:"status"`
	User   User   `json:"user"`
}

// IsMember reports whether the status counts as being inside the chat.
func (m ChatMember) IsMember() bool {
	switch m.Status {
	case MemberStatusCreator, MemberStatusAdministrator, MemberStatusMember, MemberStatusRestricted:
		return true
	}
	return false
}

// IsGone reports whether the status counts as being outside the chat.
func (m ChatMember) IsGone() bool {
	return m.Status == MemberStatusLeft || m.Status == MemberStatusKicked
}

// ChatMemberUpdated is a membership transition. From is the actor that
// caused it, which is the bot itself for forced removals.
type ChatMemberUpdated struct {
	Chat          Chat       `json:"chat"`
	From          User       `json:"from"`
	Date          int64      `json:"date"`
	OldChatMember ChatMember `json:"old_chat_member"`
	NewChatMember ChatMember `json:"new_chat_member"`
}

// Update is one getUpdates entry.
type Update struct {
	UpdateID   int64              `json:"update_id"`
	Message    *Message           `json:"message,omitempty"`
	ChatMember *ChatMemberUpdated `json:"chat_member,omitempty"`
}

// ChatInviteLink is the result of createChatInviteLink.
type ChatInviteLink struct {
	InviteLink  string `json:"invite_link"`
	Creator     User   `json:"creator"`
	ExpireDate  int64  `json:"expire_date,omitempty"`
	MemberLimit int    `json:"member_limit,omitempty"`
}
