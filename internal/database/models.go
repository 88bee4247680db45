package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Params holds the context parameters of a session (region, age, style...).
// It is stored as a JSON object.
type Params map[string]string

// Value implements driver.Valuer.
func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *Params) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Params{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Params", src)
	}

	out := Params{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("failed to decode params: %w", err)
		}
	}
	*p = out
	return nil
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Session is the drafting state of one chat: the subject being worked on,
// its context parameters and the current draft.
type Session struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	ChatID  int64  `db:"chat_id"`
	UserID  int64  `db:"user_id"`
	Subject string `db:"subject"`
	Params  Params `db:"params"`
	// Draft is empty until the first successful generation.
	Draft    string `db:"draft"`
	ServedBy string `db:"served_by"`
	Revision int    `db:"revision"`
}

// HasDraft reports whether the session holds generated text.
func (s *Session) HasDraft() bool {
	return s != nil && s.Draft != ""
}

// Generation outcomes recorded in the audit log.
const (
	OutcomeSuccess   = "success"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Generation sources.
const (
	SourceTelegram = "telegram"
	SourceHTTP     = "http"
)

// Generation is one audited cascade run.
type Generation struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	RequestID  string `db:"request_id"`
	ChatID     int64  `db:"chat_id"`
	UserID     int64  `db:"user_id"`
	Source     string `db:"source"`
	Mode       string `db:"mode"`
	Outcome    string `db:"outcome"`
	ServedBy   string `db:"served_by"`
	Provider   string `db:"provider"`
	Attempts   int    `db:"attempts"`
	Error      string `db:"error"`
	DurationMS int64  `db:"duration_ms"`
}
