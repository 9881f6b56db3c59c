package telegram

import (
	"regexp"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

const Source = "telegram"

// PreparePrompt reduces a message to a command and a prompt.
//
// A bot_command entity wins: "/image a cat" gives command "image" and prompt
// "a cat". A mention of the bot gives command "default" with the mention
// removed. Plain text in a private chat is "default"; anything else in a group
// leaves the command empty.
func PreparePrompt(msg *Message, botUsername string) domain.Inbound {
	in := domain.Inbound{
		Conversation: ConversationID(msg.Chat.ID),
		ChatType:     chatType(msg.Chat.Type),
		SenderName:   SanitizeName(displayName(msg.From)),
		Source:       Source,
	}

	text, entities := msg.Text, msg.Entities
	if text == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}
	units := utf16.Encode([]rune(text))
	mention := "@" + botUsername

	for _, entity := range entities {
		start, end := entity.Offset, entity.Offset+entity.Length
		if start < 0 || end > len(units) || start >= end {
			continue
		}
		switch entity.Type {
		case "bot_command":
			name, target, _ := strings.Cut(decode(units, start+1, end), "@")
			if target != "" && botUsername != "" && !strings.EqualFold(target, botUsername) {
				continue
			}
			in.Command = strings.ToLower(name)
			in.Prompt = joinAround(units, start, end)
			if botUsername != "" {
				in.Prompt = strings.TrimSpace(removeFold(in.Prompt, mention))
			}
			return in
		case "mention":
			if botUsername != "" && strings.EqualFold(decode(units, start, end), mention) {
				in.Command = "default"
				in.Prompt = joinAround(units, start, end)
				return in
			}
		}
	}

	if in.ChatType == domain.PrivateChat {
		in.Command = "default"
		in.Prompt = strings.TrimSpace(text)
	}
	return in
}

func chatType(t string) domain.ChatType {
	if t == "private" {
		return domain.PrivateChat
	}
	return domain.GroupChat
}

func displayName(u *User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

func decode(units []uint16, from, to int) string {
	return string(utf16.Decode(units[from:to]))
}

// joinAround returns the text with units[start:end] cut out.
func joinAround(units []uint16, start, end int) string {
	before := strings.TrimSpace(decode(units, 0, start))
	after := strings.TrimSpace(decode(units, end, len(units)))
	switch {
	case before == "":
		return after
	case after == "":
		return before
	default:
		return before + " " + after
	}
}

// removeFold drops every case-insensitive occurrence of sub, comparing rune
// windows of s itself so offsets never cross strings.
func removeFold(s, sub string) string {
	n := utf8.RuneCountInString(sub)
	if n == 0 {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		j := i
		for k := 0; k < n && j < len(s); k++ {
			_, size := utf8.DecodeRuneInString(s[j:])
			j += size
		}
		if strings.EqualFold(s[i:j], sub) {
			i = j
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

var (
	cjkPattern     = regexp.MustCompile(`[\x{3040}-\x{30ff}\x{3400}-\x{4dbf}\x{4e00}-\x{9fff}\x{f900}-\x{faff}\x{ff66}-\x{ff9f}]`)
	nameDisallowed = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// SanitizeName makes a display name acceptable as a chat message "name":
// CJK names collapse to "name", anything else is reduced to [a-zA-Z0-9_-]{1,64}.
func SanitizeName(name string) string {
	if name == "" {
		return ""
	}
	if cjkPattern.MatchString(name) {
		return "name"
	}
	clean := strings.Trim(nameDisallowed.ReplaceAllString(name, "_"), "_")
	if len(clean) > 64 {
		clean = clean[:64]
	}
	return clean
}
