package conversation

import (
	"context"
	"fmt"
	"time"

	observemetrics "github.com/voicebridge/whatsapp-voiceflow-bridge/internal/observability/metrics"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/voiceflow"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/whatsapp"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/pkg/logging"
)

const (
	maxButtons       = 3
	maxButtonLabel   = 20
	defaultPrompt    = "choose an option"
	placeholderBody  = "..."
	truncationMarker = "…"
)

// Messenger is the subset of the WhatsApp client the renderer needs.
type Messenger interface {
	SendMessage(ctx context.Context, phoneNumberID string, msg *whatsapp.Message) (*whatsapp.SendResponse, error)
	ProbeMediaSize(ctx context.Context, url string) (int64, error)
}

// Renderer maps reply traces onto WhatsApp send calls, one call per
// renderable trace, in original order. Sends are sequential; a failed send
// is logged and the batch continues.
type Renderer struct {
	messenger Messenger
	logger    *logging.Logger
	metrics   *observemetrics.BridgeMetrics

	// Pause after image sends so large media lands before the next message.
	delayPerKB    time.Duration
	fallbackDelay time.Duration
	maxDelay      time.Duration
	sleep         func(time.Duration)
}

func NewRenderer(messenger Messenger, logger *logging.Logger, metrics *observemetrics.BridgeMetrics) *Renderer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Renderer{
		messenger:     messenger,
		logger:        logger,
		metrics:       metrics,
		delayPerKB:    5 * time.Millisecond,
		fallbackDelay: 2 * time.Second,
		maxDelay:      15 * time.Second,
		sleep:         time.Sleep,
	}
}

// Render sends the trace batch to the given user.
func (r *Renderer) Render(ctx context.Context, phoneNumberID, userID string, traces []voiceflow.Trace) {
	for i := 0; i < len(traces); i++ {
		trace := traces[i]
		switch trace.Type {
		case voiceflow.TraceText, voiceflow.TraceSpeak:
			if trace.Payload.Type == "audio" && trace.Payload.Src != "" {
				r.send(ctx, phoneNumberID, "audio", whatsapp.NewAudioMessage(userID, trace.Payload.Src))
				continue
			}
			// A text directive immediately before a promptless choice
			// supplies the button prompt instead of its own message.
			if i+1 < len(traces) && isPromptlessChoice(traces[i+1]) {
				r.sendChoice(ctx, phoneNumberID, userID, traces[i+1], trace.Payload.Message)
				i++
				continue
			}
			body := trace.Payload.Message
			if body == "" {
				body = placeholderBody
			}
			r.send(ctx, phoneNumberID, "text", whatsapp.NewTextMessage(userID, body))

		case voiceflow.TraceChoice:
			r.sendChoice(ctx, phoneNumberID, userID, trace, "")

		case voiceflow.TraceVisual:
			if trace.Payload.Image == "" {
				r.logger.Warn("visual trace without image url")
				continue
			}
			r.send(ctx, phoneNumberID, "image", whatsapp.NewImageMessage(userID, trace.Payload.Image))
			r.pauseForMedia(ctx, trace.Payload.Image)

		case voiceflow.TraceAudio:
			if trace.Payload.Src == "" {
				r.logger.Warn("audio trace without source url")
				continue
			}
			r.send(ctx, phoneNumberID, "audio", whatsapp.NewAudioMessage(userID, trace.Payload.Src))

		default:
			// end, no-reply, path leftovers and anything unrecognized are
			// never surfaced to the user.
			r.logger.Debug("dropping non-renderable trace", "trace_type", trace.Type)
		}
	}
}

func (r *Renderer) sendChoice(ctx context.Context, phoneNumberID, userID string, trace voiceflow.Trace, prompt string) {
	if prompt == "" {
		prompt = trace.Payload.Message
	}
	if prompt == "" {
		prompt = defaultPrompt
	}
	buttons := buildButtons(trace.Payload.Buttons)
	if len(buttons) == 0 {
		r.logger.Warn("choice trace without buttons")
		return
	}
	r.send(ctx, phoneNumberID, "interactive", whatsapp.NewButtonMessage(userID, prompt, buttons))
}

func (r *Renderer) send(ctx context.Context, phoneNumberID, messageType string, msg *whatsapp.Message) {
	if _, err := r.messenger.SendMessage(ctx, phoneNumberID, msg); err != nil {
		r.logger.Error("failed to send whatsapp message",
			"error", err,
			"message_type", messageType,
			"to", msg.To,
		)
		r.metrics.ObserveOutbound(messageType, "error")
		return
	}
	r.metrics.ObserveOutbound(messageType, "ok")
}

// pauseForMedia sleeps proportionally to the image size so WhatsApp finishes
// delivering it before the next message in the batch.
func (r *Renderer) pauseForMedia(ctx context.Context, url string) {
	size, err := r.messenger.ProbeMediaSize(ctx, url)
	if err != nil {
		r.logger.Debug("media size probe failed, using fallback delay", "error", err)
		r.sleep(r.fallbackDelay)
		return
	}
	delay := time.Duration(size/1024) * r.delayPerKB
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	r.sleep(delay)
}

// buildButtons converts choice buttons to WhatsApp reply buttons, keeping
// the first three and truncating labels to the display limit.
func buildButtons(choices []voiceflow.ChoiceButton) []whatsapp.Button {
	if len(choices) > maxButtons {
		choices = choices[:maxButtons]
	}
	buttons := make([]whatsapp.Button, 0, len(choices))
	for i, choice := range choices {
		buttons = append(buttons, whatsapp.Button{
			Type: "reply",
			Reply: whatsapp.ButtonReply{
				ID:    buttonID(choice, i),
				Title: truncateLabel(buttonLabel(choice, i)),
			},
		})
	}
	return buttons
}

func buttonID(choice voiceflow.ChoiceButton, index int) string {
	if _, ok := choice.Request.PathTag(); ok {
		return choice.Request.Type
	}
	if name := choice.Request.IntentName(); name != "" {
		return name
	}
	return fmt.Sprintf("button_%d", index)
}

func buttonLabel(choice voiceflow.ChoiceButton, index int) string {
	if choice.Name != "" {
		return choice.Name
	}
	if choice.Request.Payload.Label != "" {
		return choice.Request.Payload.Label
	}
	return fmt.Sprintf("option %d", index+1)
}

// isPromptlessChoice reports whether a choice trace has no prompt of its
// own and should borrow the preceding text directive as its body.
func isPromptlessChoice(t voiceflow.Trace) bool {
	return t.Type == voiceflow.TraceChoice && t.Payload.Message == ""
}

func truncateLabel(label string) string {
	runes := []rune(label)
	if len(runes) <= maxButtonLabel {
		return label
	}
	return string(runes[:maxButtonLabel-1]) + truncationMarker
}
