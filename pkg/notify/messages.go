package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

type blockMessage struct {
	blocks   []goslack.Block
	fallback string
}

func fatalErrorBlocks(source string, err error) blockMessage {
	fallback := fmt.Sprintf("🔴 fatal error in %s: %v", source, err)
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(
			goslack.NewTextBlockObject(goslack.PlainTextType, fmt.Sprintf("🔴 Fatal error: %s", source), true, false),
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("```%s```", truncate(err.Error(), 1000)), false, false),
			nil, nil,
		),
	}
	return blockMessage{blocks: blocks, fallback: fallback}
}

func hostOfflineBlocks(hostID, hostname, lastError string) blockMessage {
	fallback := fmt.Sprintf("🟠 host offline: %s (%s)", hostname, hostID)
	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Host:* %s", hostname), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*ID:* %s", hostID), false, false),
	}
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(
			goslack.NewTextBlockObject(goslack.PlainTextType, "🟠 Host went offline", true, false),
		),
		goslack.NewSectionBlock(nil, fields, nil),
	}
	if lastError != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Last error:* %s", truncate(lastError, 500)), false, false),
			nil, nil,
		))
	}
	return blockMessage{blocks: blocks, fallback: fallback}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
