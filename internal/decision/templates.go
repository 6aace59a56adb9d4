package decision

import (
	"strings"

	"intake/internal/chat"
)

type templateData struct {
	applicant string
	track     string
	reason    string
	actor     string
	link      string
}

func renderTemplate(tmpl string, data templateData) string {
	reason := ""
	if strings.TrimSpace(data.reason) != "" {
		reason = " Reason: " + strings.TrimSpace(data.reason)
	}
	return strings.NewReplacer(
		"{applicant}", data.applicant,
		"{track}", data.track,
		"{reason}", reason,
		"{actor}", data.actor,
		"{link}", data.link,
	).Replace(tmpl)
}

func applicantRef(userID, name string) string {
	if userID != "" {
		return chat.Mention(userID)
	}
	if name != "" {
		return name
	}
	return "the applicant"
}

func actorRef(actorID string) string {
	if actorID == "" {
		return "vote"
	}
	return chat.Mention(actorID)
}

func messageLink(guildID, channelID, messageID string) string {
	if guildID == "" {
		return ""
	}
	return "https://discord.com/channels/" + guildID + "/" + channelID + "/" + messageID
}
