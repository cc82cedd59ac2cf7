// Package migrate implements the one-time transform from the legacy
// single-blob message content column into the {parts, attachments} shape the
// message model consumes. It runs offline; the live session never touches it,
// but its output must match the part tags and tool-invocation invariants of
// the chat package exactly.
package migrate

import "godex/internal/chat"

// legacyRecord mirrors the loosely typed shapes found in legacy content
// blobs. Every field is optional; unrecognized shapes are dropped.
type legacyRecord map[string]interface{}

func (r legacyRecord) str(key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

// TransformLegacyContent converts a decoded legacy content value into parts
// and attachments. It accepts every historical shape: plain strings, part
// arrays under "parts" or "content", single part-like records, and legacy
// tool_call/tool-call spellings.
func TransformLegacyContent(value interface{}) ([]chat.Part, []chat.Attachment) {
	switch v := value.(type) {
	case map[string]interface{}:
		record := legacyRecord(v)
		attachments := normalizeAttachments(record["attachments"])

		if parts, ok := record["parts"].([]interface{}); ok {
			return normalizeParts(parts), attachments
		}
		if content, ok := record["content"].([]interface{}); ok {
			return normalizeParts(content), attachments
		}
		if content, ok := record.str("content"); ok {
			if content == "" {
				return []chat.Part{}, attachments
			}
			return []chat.Part{chat.TextPart(content)}, attachments
		}
		if part, ok := toPart(v); ok {
			return []chat.Part{part}, attachments
		}
		return []chat.Part{}, attachments
	case []interface{}:
		return normalizeParts(v), []chat.Attachment{}
	case string:
		if v == "" {
			return []chat.Part{}, []chat.Attachment{}
		}
		return []chat.Part{chat.TextPart(v)}, []chat.Attachment{}
	default:
		return []chat.Part{}, []chat.Attachment{}
	}
}

func normalizeParts(values []interface{}) []chat.Part {
	parts := make([]chat.Part, 0, len(values))
	for _, v := range values {
		if part, ok := toPart(v); ok {
			parts = append(parts, part)
		}
	}
	return parts
}

func normalizeAttachments(value interface{}) []chat.Attachment {
	items, ok := value.([]interface{})
	if !ok {
		return []chat.Attachment{}
	}

	attachments := make([]chat.Attachment, 0, len(items))
	for _, item := range items {
		record, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		a := chat.Attachment{}
		if id, ok := record["id"].(string); ok {
			a.ID = id
		}
		if name, ok := record["name"].(string); ok {
			a.Name = name
		}
		if typ, ok := record["type"].(string); ok {
			a.Type = typ
		}
		if u, ok := record["url"].(string); ok {
			a.URL = u
		}
		if meta, ok := record["metadata"].(map[string]interface{}); ok {
			a.Metadata = meta
		}
		attachments = append(attachments, a)
	}
	return attachments
}

// toPart converts one legacy value into a part. Strings become text parts;
// records are matched by their type tag with the historical tool_call and
// tool-call spellings normalized to tool-invocation.
func toPart(value interface{}) (chat.Part, bool) {
	if s, ok := value.(string); ok {
		if s == "" {
			return chat.Part{}, false
		}
		return chat.TextPart(s), true
	}

	record, ok := value.(map[string]interface{})
	if !ok {
		return chat.Part{}, false
	}
	r := legacyRecord(record)
	typ, _ := r.str("type")

	switch typ {
	case "text":
		if text, ok := r.str("text"); ok {
			return chat.TextPart(text), true
		}
	case "reasoning":
		if reasoning, ok := r.str("reasoning"); ok {
			return chat.ReasoningPart(reasoning), true
		}
	case "tool-invocation":
		source := record
		if nested, ok := record["toolInvocation"].(map[string]interface{}); ok {
			source = nested
		}
		return toToolInvocationPart(source)
	case "tool_call", "tool-call":
		if _, ok := r.str("toolName"); ok {
			return toToolInvocationPart(record)
		}
	}

	if content, ok := r.str("content"); ok {
		if content == "" {
			return chat.Part{}, false
		}
		return chat.TextPart(content), true
	}

	if nested, ok := record["parts"].([]interface{}); ok {
		flattened := normalizeParts(nested)
		if len(flattened) == 1 {
			return flattened[0], true
		}
		if len(flattened) > 1 {
			var text string
			for _, p := range flattened {
				if p.Type == chat.PartText {
					text += p.Text
				}
			}
			return chat.TextPart(text), true
		}
	}

	return chat.Part{}, false
}

// toToolInvocationPart builds a tool-invocation part, enforcing the
// call/result invariant: args only on calls, result only on results. Records
// without both toolName and toolCallId are dropped.
func toToolInvocationPart(record map[string]interface{}) (chat.Part, bool) {
	r := legacyRecord(record)
	toolName, okName := r.str("toolName")
	toolCallID, okID := r.str("toolCallId")
	if !okName || !okID || toolName == "" || toolCallID == "" {
		return chat.Part{}, false
	}

	state := "call"
	if s, _ := r.str("state"); s == "result" {
		state = "result"
	}

	ti := &chat.ToolInvocation{
		ToolName:   toolName,
		ToolCallID: toolCallID,
		State:      state,
	}
	if state == "call" {
		if args, ok := record["args"].(map[string]interface{}); ok {
			ti.Args = args
		}
	} else {
		ti.Result = record["result"]
	}

	return chat.Part{Type: chat.PartToolInvocation, ToolInvocation: ti}, true
}
