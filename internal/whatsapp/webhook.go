package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	observemetrics "github.com/voicebridge/whatsapp-voiceflow-bridge/internal/observability/metrics"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/voiceflow"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/pkg/logging"
)

// EndConversationPhrase is the literal inbound text that forces a session
// restart before the interact call. Matched case-insensitively.
const EndConversationPhrase = "end conversation"

// UserTurn is one normalized inbound user action, ready for the
// conversation layer.
type UserTurn struct {
	PhoneNumberID string
	UserID        string
	UserName      string
	Action        voiceflow.Action
	Reset         bool
}

// Transcriber converts a voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type mediaDownloader interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// WebhookHandler handles Meta webhook verification and inbound WhatsApp
// messages, normalizing each one into a UserTurn.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	media       mediaDownloader
	transcriber Transcriber
	onTurn      func(turn UserTurn)
	logger      *logging.Logger
	metrics     *observemetrics.BridgeMetrics
}

// WebhookConfig wires the webhook handler's collaborators.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
	Media       mediaDownloader
	Transcriber Transcriber
	OnTurn      func(turn UserTurn)
	Logger      *logging.Logger
	Metrics     *observemetrics.BridgeMetrics
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		media:       cfg.Media,
		transcriber: cfg.Transcriber,
		onTurn:      cfg.OnTurn,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// HandleVerification handles the GET webhook verification challenge.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook events. WhatsApp retries deliveries on
// non-2xx responses, so everything except a missing top-level object
// discriminator (and a bad signature) is acknowledged with 200.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.appSecret != "" {
		if !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
			h.logger.Warn("invalid webhook signature", "remote_ip", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Object == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"error | unexpected body"}`)
		return
	}

	// Acknowledge before processing to avoid provider retries.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"message":"ok"}`)

	h.process(r.Context(), payload)
	h.metrics.ObserveWebhookLatency(http.MethodPost, time.Since(start).Seconds())
}

func (h *WebhookHandler) process(ctx context.Context, payload WebhookPayload) {
	value, ok := firstValue(payload)
	if !ok || len(value.Messages) == 0 {
		return
	}

	msg := value.Messages[0]
	turn := UserTurn{
		PhoneNumberID: value.Metadata.PhoneNumberID,
		UserID:        msg.From,
		UserName:      contactName(value.Contacts),
	}
	h.metrics.ObserveInbound(msg.Type)

	switch {
	case msg.Text != nil:
		turn.Action = voiceflow.TextAction(msg.Text.Body)
		turn.Reset = isEndConversation(msg.Text.Body)

	case msg.Interactive != nil:
		reply := msg.Interactive.ButtonReply
		if reply == nil {
			reply = msg.Interactive.ListReply
		}
		if reply == nil {
			h.logger.Warn("interactive message without reply", "interactive_type", msg.Interactive.Type)
			return
		}
		if strings.HasPrefix(reply.ID, voiceflow.PathPrefix) {
			turn.Action = voiceflow.PathAction(strings.TrimPrefix(reply.ID, voiceflow.PathPrefix), reply.Title)
		} else {
			turn.Action = voiceflow.IntentAction(reply.Title, reply.ID)
		}

	case msg.Audio != nil:
		if !msg.Audio.Voice || h.transcriber == nil || h.media == nil {
			h.logger.Info("dropping audio message", "voice", msg.Audio != nil && msg.Audio.Voice)
			return
		}
		// Transcription involves two vendor round-trips; do not hold up
		// the webhook response path.
		go h.transcribeTurn(turn, msg.Audio.ID)
		return

	default:
		h.logger.Info("dropping unsupported message type", "message_type", msg.Type)
		return
	}

	if h.onTurn != nil {
		h.onTurn(turn)
	}
}

func (h *WebhookHandler) transcribeTurn(turn UserTurn, mediaID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	audio, mimeType, err := h.media.DownloadMedia(ctx, mediaID)
	if err != nil {
		h.logger.Error("failed to download voice note", "error", err, "media_id", mediaID)
		h.metrics.ObserveTranscribeError()
		return
	}
	transcript, err := h.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		h.logger.Error("failed to transcribe voice note", "error", err, "media_id", mediaID)
		h.metrics.ObserveTranscribeError()
		return
	}
	if strings.TrimSpace(transcript) == "" {
		h.logger.Info("empty transcript, dropping turn", "media_id", mediaID)
		return
	}

	turn.Action = voiceflow.TextAction(transcript)
	turn.Reset = isEndConversation(transcript)
	if h.onTurn != nil {
		h.onTurn(turn)
	}
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	const prefix = "sha256="
	if len(signature) <= len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}

func firstValue(payload WebhookPayload) (WebhookValue, bool) {
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return WebhookValue{}, false
	}
	return payload.Entry[0].Changes[0].Value, true
}

func contactName(contacts []WebhookContact) string {
	if len(contacts) > 0 && contacts[0].Profile.Name != "" {
		return contacts[0].Profile.Name
	}
	return "Unknown"
}

func isEndConversation(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), EndConversationPhrase)
}
