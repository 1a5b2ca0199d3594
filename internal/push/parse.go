package push

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/lumenhq/offworker/internal/record"
)

// Parse normalizes a push payload into a notification, never failing:
// any parse problem falls back toward the default record. The logger may
// be nil.
//
// Single pass, no retries:
//  1. Seed the default record.
//  2. JSON payload: message/body/title becomes the displayed title, a
//     distinct secondary title becomes the body, remaining fields merge.
//  3. Non-JSON payload: split on the first "|" (label|message).
//  4. Anything unexpected: log and show the defaults.
func Parse(data []byte, def record.Notification, log *slog.Logger) (n record.Notification) {
	n = def
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Error("push payload handling failed, showing default notification", "panic", r)
			}
			n = def
		}
	}()

	if len(data) == 0 {
		return def
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err == nil && raw != nil {
		return mergeJSON(def, raw)
	}

	return parseText(string(data), def)
}

// parseText handles the plain-text fallback format.
// "Label|Actual message" → body "Label", title "Actual message".
// No delimiter → the whole text is the title, body empty.
func parseText(text string, def record.Notification) record.Notification {
	n := def
	if i := strings.Index(text, "|"); i >= 0 {
		n.Body = text[:i]
		n.Title = text[i+1:]
	} else {
		n.Title = text
		n.Body = ""
	}
	return n
}

// mergeJSON applies the two-step merge: first the raw payload overwrites
// the defaults field by field, then the computed title/body overwrite any
// same-named raw fields.
func mergeJSON(def record.Notification, raw map[string]any) record.Notification {
	n := def

	// Step 1: base defaults ← raw payload.
	rawTitle, _ := stringField(raw, "title")
	rawBody, _ := stringField(raw, "body")
	rawMessage, _ := stringField(raw, "message")
	if rawTitle != "" {
		n.Title = rawTitle
	}
	if rawBody != "" {
		n.Body = rawBody
	}
	if icon, ok := stringField(raw, "icon"); ok {
		n.Icon = icon
	}
	if tag, ok := stringField(raw, "tag"); ok {
		n.Tag = tag
	}
	if ri, ok := raw["requireInteraction"].(bool); ok {
		n.RequireInteraction = ri
	}
	if actions, ok := raw["actions"].([]any); ok {
		n.Actions = parseActions(actions, def.Actions)
	}
	if data, ok := raw["data"].(map[string]any); ok {
		n.Data = data
	}

	// Step 2: raw payload ← computed title/body.
	title := firstNonEmpty(rawMessage, rawBody, rawTitle)
	if title != "" {
		n.Title = title
		if rawTitle != "" && rawTitle != title {
			n.Body = rawTitle
		} else {
			n.Body = ""
		}
	}

	return n
}

// parseActions converts a raw JSON action list. A malformed list keeps the
// default action pair rather than showing a notification with no buttons.
func parseActions(raw []any, fallback []record.Action) []record.Action {
	actions := make([]record.Action, 0, len(raw))
	for _, elem := range raw {
		obj, ok := elem.(map[string]any)
		if !ok {
			return fallback
		}
		action, _ := stringField(obj, "action")
		title, _ := stringField(obj, "title")
		if action == "" {
			return fallback
		}
		actions = append(actions, record.Action{Action: action, Title: title})
	}
	return actions
}

func stringField(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
