package voiceflow

import "strings"

// Trace type discriminators returned by the general runtime.
const (
	TraceText    = "text"
	TraceSpeak   = "speak"
	TraceChoice  = "choice"
	TraceVisual  = "visual"
	TraceAudio   = "audio"
	TraceNoReply = "no-reply"
	TracePath    = "path"
	TraceEnd     = "end"
)

// PathPrefix tags button reply ids that jump to a flow path instead of
// matching an intent.
const PathPrefix = "path-"

// Trace is one reply directive from an interact call.
type Trace struct {
	Type    string       `json:"type"`
	Payload TracePayload `json:"payload"`
}

// TracePayload is the union of payload fields across the trace types the
// bridge renders. Unknown fields are ignored on decode.
type TracePayload struct {
	Message string         `json:"message,omitempty"`
	Type    string         `json:"type,omitempty"`
	Buttons []ChoiceButton `json:"buttons,omitempty"`
	Image   string         `json:"image,omitempty"`
	Src     string         `json:"src,omitempty"`
	Timeout int            `json:"timeout,omitempty"`
	Path    string         `json:"path,omitempty"`
	Label   string         `json:"label,omitempty"`
}

// ChoiceButton is one button of a choice trace.
type ChoiceButton struct {
	Name    string        `json:"name"`
	Request ButtonRequest `json:"request"`
}

// ButtonRequest is the action the runtime expects back when the user picks
// the button.
type ButtonRequest struct {
	Type    string               `json:"type"`
	Payload ButtonRequestPayload `json:"payload"`
}

type ButtonRequestPayload struct {
	Label  string     `json:"label,omitempty"`
	Intent *IntentRef `json:"intent,omitempty"`
}

type IntentRef struct {
	Name string `json:"name"`
}

// PathTag returns the path name of a button request ("path-" prefix
// stripped) and whether the request is a path jump at all.
func (r ButtonRequest) PathTag() (string, bool) {
	if strings.HasPrefix(r.Type, PathPrefix) {
		return strings.TrimPrefix(r.Type, PathPrefix), true
	}
	return "", false
}

// IntentName returns the intent the button resolves to, preferring the
// explicit intent reference over the request type.
func (r ButtonRequest) IntentName() string {
	if r.Payload.Intent != nil && r.Payload.Intent.Name != "" {
		return r.Payload.Intent.Name
	}
	return r.Type
}

// Action is the user-side half of an interact exchange.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// IntentPayload carries a matched intent with its originating query.
type IntentPayload struct {
	Query    string    `json:"query"`
	Intent   IntentRef `json:"intent"`
	Entities []Entity  `json:"entities"`
}

type Entity struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type pathPayload struct {
	Label string `json:"label,omitempty"`
}

// TextAction wraps a verbatim user utterance.
func TextAction(body string) Action {
	return Action{Type: "text", Payload: body}
}

// IntentAction wraps a matched intent (button or list reply without a path
// tag). Entities are always present, possibly empty.
func IntentAction(query, intentName string) Action {
	return Action{Type: "intent", Payload: IntentPayload{
		Query:    query,
		Intent:   IntentRef{Name: intentName},
		Entities: []Entity{},
	}}
}

// PathAction jumps to a flow path. The path argument is the tag without the
// "path-" prefix.
func PathAction(path, label string) Action {
	return Action{Type: PathPrefix + path, Payload: pathPayload{Label: label}}
}

// IsPathAction reports whether the action is a flow jump.
func (a Action) IsPathAction() bool {
	return strings.HasPrefix(a.Type, PathPrefix)
}
