// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package slacknotifier

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Slack rejects section blocks carrying more than 10 fields.
	maxFieldsPerSection = 10

	footerTimeLayout = "2006-01-02 15:04:05"
)

// Block element types
const (
	blockHeader  = "header"
	blockSection = "section"
	blockDivider = "divider"
	blockContext = "context"

	textPlain    = "plain_text"
	textMarkdown = "mrkdwn"
)

// Message represents a Slack webhook message payload
type Message struct {
	Text        string       `json:"text,omitempty"`
	Blocks      []Block      `json:"blocks,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Block represents a Slack block-kit element
type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Fields   []Text `json:"fields,omitempty"`
	Elements []Text `json:"elements,omitempty"`
}

// Text represents a text object within a Slack block
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Attachment represents a Slack attachment. Only used to draw a coloured bar
// next to the blocks.
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Field is one labelled value of a notification. Value may be a []Field, in
// which case it is rendered as a bulleted list.
type Field struct {
	Label string
	Value any
}

// Notification is the content of a single message. Fields and CodeBlocks are
// rendered in the order given.
type Notification struct {
	Message    string
	Title      string
	Fields     []Field
	CodeBlocks []Field
}

// BuildBlocks renders a notification as block-kit blocks: an optional header,
// the level-tagged message, the plain fields, one section per code block, a
// divider and a footer naming the system and send time.
func BuildBlocks(level Level, n Notification, systemName string, now time.Time) []Block {
	blocks := make([]Block, 0, 4+len(n.CodeBlocks)+len(n.Fields)/maxFieldsPerSection)

	if n.Title != "" {
		blocks = append(blocks, Block{
			Type: blockHeader,
			Text: &Text{Type: textPlain, Text: n.Title},
		})
	}

	blocks = append(blocks, Block{
		Type: blockSection,
		Text: &Text{Type: textMarkdown, Text: fmt.Sprintf("%s *%s*\n%s", level.Icon(), level, n.Message)},
	})

	for start := 0; start < len(n.Fields); start += maxFieldsPerSection {
		end := min(start+maxFieldsPerSection, len(n.Fields))
		group := make([]Text, 0, end-start)
		for _, f := range n.Fields[start:end] {
			group = append(group, Text{
				Type: textMarkdown,
				Text: fmt.Sprintf("*%s:*\n%s", f.Label, formatValue(f.Value)),
			})
		}
		blocks = append(blocks, Block{Type: blockSection, Fields: group})
	}

	for _, f := range n.CodeBlocks {
		blocks = append(blocks, Block{
			Type: blockSection,
			Text: &Text{Type: textMarkdown, Text: fmt.Sprintf("*%s:*\n```%s```", f.Label, formatValue(f.Value))},
		})
	}

	blocks = append(blocks,
		Block{Type: blockDivider},
		Block{
			Type:     blockContext,
			Elements: []Text{{Type: textMarkdown, Text: footer(systemName, now)}},
		},
	)

	return blocks
}

// BuildMessage wraps the blocks of a notification into a webhook payload.
// With colorBar set the blocks are placed inside an attachment coloured by
// level.
func BuildMessage(level Level, n Notification, systemName string, now time.Time, colorBar bool) Message {
	blocks := BuildBlocks(level, n, systemName, now)
	if !colorBar {
		return Message{Blocks: blocks}
	}
	return Message{
		Attachments: []Attachment{{Color: level.Color(), Blocks: blocks}},
	}
}

// FormatForLog renders a notification as plain text for the local
// notification log.
func FormatForLog(level Level, n Notification) string {
	var lines []string
	if n.Title != "" {
		lines = append(lines, fmt.Sprintf("=== %s ===", n.Title))
	}
	lines = append(lines, fmt.Sprintf("%s %s: %s", level.Icon(), level, n.Message))

	if len(n.Fields) > 0 {
		lines = append(lines, "Fields:")
		for _, f := range n.Fields {
			if nested, ok := f.Value.([]Field); ok {
				lines = append(lines, f.Label+":")
				for _, nf := range nested {
					lines = append(lines, fmt.Sprintf("    %s: %s", nf.Label, formatScalar(nf.Value)))
				}
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", f.Label, formatScalar(f.Value)))
		}
	}

	if len(n.CodeBlocks) > 0 {
		lines = append(lines, "Code Blocks:")
		for _, f := range n.CodeBlocks {
			lines = append(lines, f.Label+":", formatValue(f.Value))
		}
	}

	return strings.Join(lines, "\n")
}

func footer(systemName string, now time.Time) string {
	sentAt := "Sent at: " + now.Format(footerTimeLayout)
	if systemName == "" {
		return sentAt
	}
	return fmt.Sprintf("System: %s | %s", systemName, sentAt)
}

func formatValue(v any) string {
	nested, ok := v.([]Field)
	if !ok {
		return formatScalar(v)
	}
	items := make([]string, 0, len(nested))
	for _, f := range nested {
		items = append(items, fmt.Sprintf("• %s: %s", f.Label, formatScalar(f.Value)))
	}
	return strings.Join(items, "\n")
}

func formatScalar(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
