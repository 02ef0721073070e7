package gateway

import (
	"strings"

	"chatgate-backend/internal/models"
)

// ConvertMessages turns front-end UI messages into gateway messages.
// Reasoning, sources and step markers are display-only and are dropped;
// messages left without content are skipped. Images are passed by URL and
// other attachments are inlined as text.
func ConvertMessages(in []models.UIMessage) []Message {
	out := make([]Message, 0, len(in))

	for _, m := range in {
		switch m.Role {
		case models.RoleSystem, models.RoleAssistant:
			text := m.Text()
			if strings.TrimSpace(text) == "" {
				continue
			}
			out = append(out, Message{Role: m.Role, Content: text})

		case models.RoleUser:
			msg, ok := convertUserMessage(m)
			if ok {
				out = append(out, msg)
			}
		}
	}

	return out
}

func convertUserMessage(m models.UIMessage) (Message, bool) {
	if len(m.Parts) == 0 {
		if strings.TrimSpace(m.Content) == "" {
			return Message{}, false
		}
		return Message{Role: models.RoleUser, Content: m.Content}, true
	}

	var parts []ContentPart
	var attachments []string
	hasImage := false
	for _, p := range m.Parts {
		switch p.Type {
		case models.PartText:
			if p.Text != "" {
				parts = append(parts, ContentPart{Type: "text", Text: p.Text})
			}
		case models.PartFile:
			if strings.HasPrefix(p.MediaType, "image/") && p.URL != "" {
				parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: p.URL}})
				hasImage = true
				continue
			}
			text := attachmentText(p)
			parts = append(parts, ContentPart{Type: "text", Text: text})
			attachments = append(attachments, text)
		}
	}

	if len(parts) == 0 {
		return Message{}, false
	}
	if !hasImage {
		content := m.Text()
		for _, a := range attachments {
			if content != "" {
				content += "\n\n"
			}
			content += a
		}
		return Message{Role: models.RoleUser, Content: content}, true
	}
	return Message{Role: models.RoleUser, Parts: parts}, true
}
