package notify

import (
	"fmt"
	"strings"
	"time"

	"keyforge/pkg/contracts/domain"
	"keyforge/pkg/contracts/events"
)

// Embed colours
const (
	ColorSuccess = 0x00ff00
	ColorWarning = 0xffa500
	ColorDanger  = 0xff0000
	ColorInfo    = 0x0099ff
)

// maxListedKeys bounds the key field; Discord rejects field values over 1024 characters
const maxListedKeys = 10

// Message is a Discord webhook execute payload
type Message struct {
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds"`
}

// Embed is one Discord rich embed
type Embed struct {
	Title     string  `json:"title"`
	Color     int     `json:"color"`
	Fields    []Field `json:"fields,omitempty"`
	Footer    *Footer `json:"footer,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Field is a name/value row of an embed
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Footer is the embed footer line
type Footer struct {
	Text string `json:"text"`
}

// BuildEmbed renders ev as a Discord embed
func BuildEmbed(ev events.KeyEvent) Embed {
	e := Embed{
		Title:     title(ev.Type),
		Color:     color(ev.Type),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}

	if ev.Stats != nil {
		st := ev.Stats
		e.Fields = append(e.Fields,
			inline("Total Keys", st.TotalKeys),
			inline("Permanent Keys", st.Permanent),
			inline("Temporary Keys", st.Temporary),
			inline("Active Keys", st.Active),
			inline("Expired Keys", st.Expired),
			inline("HWID Resets", st.HWIDResets),
			inline("Bound", st.Bound),
			inline("Unbound", st.Unbound),
		)
	}

	if len(ev.Keys) > 0 {
		name := "Key"
		if len(ev.Keys) > 1 {
			name = fmt.Sprintf("Keys (%d)", len(ev.Keys))
		}
		e.Fields = append(e.Fields, Field{Name: name, Value: listKeys(ev.Keys)})
	}
	if ev.Kind != "" {
		kind := "Permanent"
		if ev.Kind == domain.KeyKindTemporary {
			kind = "Temporary"
		}
		e.Fields = append(e.Fields, Field{Name: "Type", Value: kind, Inline: true})
	}
	if ev.ExpiresAt != nil {
		e.Fields = append(e.Fields, Field{
			Name:   "Expires",
			Value:  ev.ExpiresAt.UTC().Format(time.RFC1123),
			Inline: true,
		})
	}
	if ev.Type == events.MessageTypeKeyHWIDReset {
		e.Fields = append(e.Fields, inline("Resets So Far", ev.HWIDResets))
	}
	if ev.HWID != "" {
		e.Fields = append(e.Fields, Field{Name: "HWID", Value: "`" + ev.HWID + "`", Inline: true})
	}
	if ev.TraceID != "" {
		e.Footer = &Footer{Text: "trace " + ev.TraceID}
	}
	return e
}

func title(t events.MessageType) string {
	switch t {
	case events.MessageTypeKeyGenerated:
		return "Key Generated"
	case events.MessageTypeKeyDeleted:
		return "Key Deleted"
	case events.MessageTypeKeyHWIDReset:
		return "Key HWID Reset"
	case events.MessageTypeKeyRevoked:
		return "Key Revoked"
	case events.MessageTypeKeyBound:
		return "Key Bound"
	case events.MessageTypeKeyExpired:
		return "Keys Expired"
	case events.MessageTypeKeysCleaned:
		return "Expired Keys Removed"
	case events.MessageTypeStatsReport:
		return "Key Statistics Report"
	}
	return string(t)
}

func color(t events.MessageType) int {
	switch t {
	case events.MessageTypeKeyDeleted, events.MessageTypeKeyRevoked:
		return ColorDanger
	case events.MessageTypeKeyExpired, events.MessageTypeKeysCleaned, events.MessageTypeKeyHWIDReset:
		return ColorWarning
	case events.MessageTypeStatsReport:
		return ColorInfo
	}
	return ColorSuccess
}

func inline(name string, n int) Field {
	return Field{Name: name, Value: fmt.Sprintf("%d", n), Inline: true}
}

func listKeys(ids []string) string {
	shown := ids
	if len(shown) > maxListedKeys {
		shown = shown[:maxListedKeys]
	}
	var b strings.Builder
	for i, id := range shown {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("`" + id + "`")
	}
	if rest := len(ids) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n... and %d more", rest)
	}
	return b.String()
}
