package chat

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Identity is the authenticated user id a chat log is scoped to.
// The zero value means no session is active.
type Identity string

const NoIdentity Identity = ""

func (i Identity) IsNone() bool { return strings.TrimSpace(string(i)) == "" }

// LogPath returns the store path of the identity's message log.
func LogPath(id Identity) string { return "messages/" + string(id) }

// Session is the identity currently associated with the client.
type Session struct {
	Identity Identity
}

// Transition is emitted once per actual session change.
type Transition struct {
	From Identity
	To   Identity
}

func (t Transition) IsLogin() bool  { return t.From.IsNone() && !t.To.IsNone() }
func (t Transition) IsLogout() bool { return !t.From.IsNone() && t.To.IsNone() }

type Author string

const (
	AuthorUser Author = "User"
	AuthorBot  Author = "Bot"
)

func ParseAuthor(s string) (Author, error) {
	switch Author(s) {
	case AuthorUser:
		return AuthorUser, nil
	case AuthorBot:
		return AuthorBot, nil
	default:
		return "", errors.Errorf("unknown author %q", s)
	}
}

// Message is a validated log entry. Timestamp is unix milliseconds assigned by the store.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Author    Author `json:"user"`
	Timestamp int64  `json:"timestamp"`
}

func (m Message) IsBot() bool { return m.Author == AuthorBot }

// Collection is a complete snapshot of one identity's log, in server order.
type Collection struct {
	Identity Identity
	Messages []Message
}

func (c Collection) Len() int { return len(c.Messages) }

func (c Collection) IsEmpty() bool { return len(c.Messages) == 0 }

// Clone returns a copy that shares no backing array with c.
func (c Collection) Clone() Collection {
	out := Collection{Identity: c.Identity}
	if len(c.Messages) > 0 {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	return out
}

// BotIDs returns the ids of all bot-authored messages.
func (c Collection) BotIDs() map[string]struct{} {
	ids := map[string]struct{}{}
	for _, m := range c.Messages {
		if m.IsBot() {
			ids[m.ID] = struct{}{}
		}
	}
	return ids
}

// NewBotMessages returns bot messages present in c but not in prev.
func (c Collection) NewBotMessages(prev Collection) []Message {
	seen := prev.BotIDs()
	var out []Message
	for _, m := range c.Messages {
		if !m.IsBot() {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// rawEntry mirrors the stored JSON value. Pointers distinguish absent fields from zero values.
type rawEntry struct {
	Text      *string         `json:"text"`
	User      *string         `json:"user"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// DecodeEntry validates a stored value and turns it into a Message.
func DecodeEntry(key string, raw []byte) (Message, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Message{}, errors.New("entry key is empty")
	}
	var e rawEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Message{}, errors.Wrapf(err, "entry %s: decode", key)
	}
	if e.Text == nil || strings.TrimSpace(*e.Text) == "" {
		return Message{}, errors.Errorf("entry %s: missing text", key)
	}
	if e.User == nil {
		return Message{}, errors.Errorf("entry %s: missing user", key)
	}
	author, err := ParseAuthor(*e.User)
	if err != nil {
		return Message{}, errors.Wrapf(err, "entry %s", key)
	}
	ts, err := decodeTimestamp(e.Timestamp)
	if err != nil {
		return Message{}, errors.Wrapf(err, "entry %s", key)
	}
	return Message{ID: key, Text: *e.Text, Author: author, Timestamp: ts}, nil
}

// decodeTimestamp accepts a resolved number or nothing. A still-unresolved server
// placeholder ({".sv":"timestamp"}) decodes to 0.
func decodeTimestamp(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, errors.Wrap(err, "invalid timestamp")
			}
			return int64(f), nil
		}
		return v, nil
	}
	var placeholder map[string]string
	if err := json.Unmarshal(raw, &placeholder); err == nil {
		if placeholder[".sv"] == "timestamp" {
			return 0, nil
		}
	}
	return 0, errors.Errorf("invalid timestamp %s", string(raw))
}

// EncodeEntry renders a message value the way the store persists it.
func EncodeEntry(text string, author Author, timestamp int64) ([]byte, error) {
	return json.Marshal(map[string]any{
		"text":      text,
		"user":      string(author),
		"timestamp": timestamp,
	})
}
