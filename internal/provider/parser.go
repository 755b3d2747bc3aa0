package provider

import (
	"encoding/json"
	"strings"
	"time"
)

// The upstream API spells the same concept several ways depending on the
// endpoint and payload age. Each concept gets exactly one priority list here,
// resolved at the boundary; business logic never sees the synonyms.
var (
	idKeys        = []string{"id", "external_id", "provider_id"}
	nameKeys      = []string{"name", "subject", "title"}
	filenameKeys  = []string{"file_name", "filename", "name"}
	mimeKeys      = []string{"mimetype", "mime_type", "content_type"}
	sentAtKeys    = []string{"timestamp", "sent_at", "created_at", "date"}
	contentKeys   = []string{"text", "content", "body"}
	senderKeys    = []string{"sender_id", "sender_urn", "from"}
	avatarKeys    = []string{"profile_picture_url", "avatar_url", "picture"}
	headlineKeys  = []string{"headline", "occupation", "title"}
	firstNameKeys = []string{"first_name", "given_name"}
	lastNameKeys  = []string{"last_name", "family_name"}
	orgKeys       = []string{"organization_id", "org_id", "mailbox_organization_id"}
	unreadKeys    = []string{"unread_count", "unread"}
)

// orgURNPrefixes mark sender identities that belong to an organization
// rather than a person.
var orgURNPrefixes = []string{
	"urn:li:organization:",
	"urn:li:company:",
	"org:",
}

// IsOrgURN reports whether an external identity denotes an organization.
func IsOrgURN(id string) bool {
	for _, p := range orgURNPrefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

// ParseChat normalizes one raw chat payload.
func ParseChat(raw json.RawMessage) (Chat, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return Chat{}, err
	}
	c := Chat{
		ExternalID:     firstString(m, idKeys...),
		Name:           firstString(m, nameKeys...),
		OrganizationID: firstString(m, orgKeys...),
		ContentType:    firstString(m, "content_type", "folder"),
		SenderID:       firstString(m, senderKeys...),
		LastActivityAt: firstTime(m, "last_activity_at", "updated_at", "timestamp"),
		UnreadCount:    int(firstInt(m, unreadKeys...)),
		Archived:       firstBool(m, "archived"),
		ReadOnly:       firstBool(m, "read_only", "readonly"),
		Raw:            string(raw),
	}
	c.Type = "direct"
	if firstBool(m, "is_group", "group") || firstString(m, "type", "chat_type") == "group" {
		c.Type = "group"
	}
	return c, nil
}

// ParseAttendee normalizes one raw attendee payload.
func ParseAttendee(raw json.RawMessage) (Attendee, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return Attendee{}, err
	}
	return Attendee{
		ExternalID:      firstString(m, idKeys...),
		IsSelf:          firstBool(m, "is_self", "self"),
		Hidden:          firstBool(m, "hidden"),
		FirstName:       firstString(m, firstNameKeys...),
		LastName:        firstString(m, lastNameKeys...),
		DisplayName:     firstString(m, "display_name", "name"),
		Headline:        firstString(m, headlineKeys...),
		AvatarURL:       firstString(m, avatarKeys...),
		NetworkDistance: firstString(m, "network_distance", "distance"),
		IsConnection:    firstBool(m, "is_connection", "connected"),
	}, nil
}

// ParseMessage normalizes one raw message payload, including its attachments.
func ParseMessage(raw json.RawMessage) (Message, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ExternalID:     firstString(m, idKeys...),
		ChatExternalID: firstString(m, "chat_id", "conversation_id", "thread_id"),
		SenderID:       firstString(m, senderKeys...),
		Content:        firstString(m, contentKeys...),
		Type:           firstString(m, "message_type", "type"),
		IsRead:         firstBool(m, "is_read", "seen", "read"),
		SentAt:         firstTime(m, sentAtKeys...),
		Raw:            string(raw),
	}
	if v, ok := lookupBool(m, "is_sender", "is_outgoing", "from_me"); ok {
		msg.IsOutgoing = &v
	}
	if list, ok := m["attachments"].([]any); ok {
		for _, item := range list {
			encoded, err := json.Marshal(item)
			if err != nil {
				continue
			}
			att, err := ParseAttachment(encoded)
			if err != nil || att.ExternalID == "" {
				continue
			}
			msg.Attachments = append(msg.Attachments, att)
		}
	}
	return msg, nil
}

// ParseAttachment normalizes one raw attachment payload.
func ParseAttachment(raw json.RawMessage) (Attachment, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return Attachment{}, err
	}
	kind := firstString(m, "type", "kind")
	if kind == "" {
		kind = "file"
	}
	return Attachment{
		ExternalID:  firstString(m, idKeys...),
		Kind:        kind,
		URL:         firstString(m, "url", "download_url"),
		Filename:    firstString(m, filenameKeys...),
		Size:        firstInt(m, "size", "file_size"),
		MimeType:    firstString(m, mimeKeys...),
		Unavailable: firstBool(m, "unavailable", "expired"),
	}, nil
}

// ParseProfile normalizes one raw profile payload.
func ParseProfile(raw json.RawMessage) (Profile, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		ExternalID:      firstString(m, "provider_id", "id", "public_identifier"),
		FirstName:       firstString(m, firstNameKeys...),
		LastName:        firstString(m, lastNameKeys...),
		DisplayName:     firstString(m, "display_name", "name"),
		Headline:        firstString(m, headlineKeys...),
		AvatarURL:       firstString(m, avatarKeys...),
		NetworkDistance: firstString(m, "network_distance", "distance"),
		IsConnection:    firstBool(m, "is_connection", "is_relationship"),
		Raw:             string(raw),
	}
	if p.DisplayName == "" {
		p.DisplayName = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	return p, nil
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstInt(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if v, ok := m[k].(float64); ok {
			return int64(v)
		}
	}
	return 0
}

func firstBool(m map[string]any, keys ...string) bool {
	v, _ := lookupBool(m, keys...)
	return v
}

func lookupBool(m map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		if v, ok := m[k].(bool); ok {
			return v, true
		}
	}
	return false, false
}

// firstTime resolves a timestamp that may arrive as unix seconds, unix
// millis, or an RFC3339 string. Returns unix millis, 0 when absent.
func firstTime(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if ts := ParseTimestamp(m[k]); ts > 0 {
			return ts
		}
	}
	return 0
}

// ParseTimestamp normalizes a decoded JSON timestamp value (unix seconds,
// unix millis, or RFC3339 string) to unix millis. Returns 0 when the value
// is absent or unparseable.
func ParseTimestamp(v any) int64 {
	switch v := v.(type) {
	case float64:
		if v <= 0 {
			return 0
		}
		if v < 1e12 {
			return int64(v) * 1000
		}
		return int64(v)
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}
