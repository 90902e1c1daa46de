package conversation

import (
	"context"
	"strings"
	"time"

	observemetrics "github.com/voicebridge/whatsapp-voiceflow-bridge/internal/observability/metrics"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/voiceflow"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/whatsapp"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/pkg/logging"
)

const defaultFallbackMessage = "We are experiencing a technical difficulty, please try again later."

// runtimeClient is the subset of the Voiceflow client the orchestrator uses.
type runtimeClient interface {
	Interact(ctx context.Context, userID string, action voiceflow.Action, opts voiceflow.InteractOptions) ([]voiceflow.Trace, error)
	PatchVariables(ctx context.Context, userID, sessionID string) error
}

type traceRenderer interface {
	Render(ctx context.Context, phoneNumberID, userID string, traces []voiceflow.Trace)
}

// Orchestrator exchanges one user turn for reply directives via the
// Voiceflow runtime and hands them to the renderer. It owns session
// continuity and the degraded-mode fallback behavior.
type Orchestrator struct {
	runtime     runtimeClient
	renderer    traceRenderer
	sessions    *SessionStore
	transcripts *TranscriptStore
	logger      *logging.Logger
	metrics     *observemetrics.BridgeMetrics

	fallbackMessage string
	maxPathDepth    int
	now             func() time.Time
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Runtime         runtimeClient
	Renderer        traceRenderer
	Sessions        *SessionStore
	Transcripts     *TranscriptStore
	Logger          *logging.Logger
	Metrics         *observemetrics.BridgeMetrics
	FallbackMessage string
	MaxPathDepth    int
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = defaultFallbackMessage
	}
	if cfg.MaxPathDepth <= 0 {
		cfg.MaxPathDepth = 5
	}
	return &Orchestrator{
		runtime:         cfg.Runtime,
		renderer:        cfg.Renderer,
		sessions:        cfg.Sessions,
		transcripts:     cfg.Transcripts,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		fallbackMessage: cfg.FallbackMessage,
		maxPathDepth:    cfg.MaxPathDepth,
		now:             time.Now,
	}
}

// HandleTurn runs one full exchange: session management, the interact call
// with path-following, and outbound rendering. It never returns an error;
// any failure degrades to a single fallback apology so the user is not left
// with silence.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn whatsapp.UserTurn) {
	if turn.Reset {
		restartID := RestartSessionID(turn.UserID, o.now())
		if err := o.runtime.PatchVariables(ctx, turn.UserID, restartID); err != nil {
			o.logger.Warn("failed to patch variables for session restart",
				"error", err,
				"user_id", turn.UserID,
			)
		}
		o.sessions.Reset(turn.UserID)
	}

	sess := o.sessions.GetOrCreate(turn.UserID)
	o.recordTranscript(sess.ID, TranscriptMessage{
		Role:     "user",
		UserID:   turn.UserID,
		UserName: turn.UserName,
		Body:     describeAction(turn.Action),
		Kind:     turn.Action.Type,
	})

	traces, err := o.runtime.Interact(ctx, turn.UserID, turn.Action, voiceflow.InteractOptions{
		SessionID: sess.ID,
		Restart:   turn.Reset,
	})
	if err != nil {
		o.metrics.ObserveInteract("error")
		o.logger.Error("voiceflow interact failed, sending fallback",
			"error", err,
			"user_id", turn.UserID,
		)
		o.renderer.Render(ctx, turn.PhoneNumberID, turn.UserID, []voiceflow.Trace{o.fallbackTrace()})
		return
	}
	o.metrics.ObserveInteract("ok")

	out := o.expandPaths(ctx, turn.UserID, sess.ID, traces, 0)
	if len(out) == 0 {
		// A 200 with no directives must not leave the user hanging.
		out = []voiceflow.Trace{o.fallbackTrace()}
	}

	o.renderer.Render(ctx, turn.PhoneNumberID, turn.UserID, out)

	for _, t := range out {
		if (t.Type == voiceflow.TraceText || t.Type == voiceflow.TraceSpeak) && t.Payload.Message != "" {
			o.recordTranscript(sess.ID, TranscriptMessage{
				Role:   "assistant",
				UserID: turn.UserID,
				Body:   t.Payload.Message,
				Kind:   t.Type,
			})
		}
	}

	if hasEnd(out) {
		o.sessions.Clear(turn.UserID)
	}
}

// expandPaths replaces each path directive with the traces of a follow-up
// interact, depth-first, keeping batch order. Past the depth bound it fails
// closed with the fallback message instead of trusting the runtime to
// terminate.
func (o *Orchestrator) expandPaths(ctx context.Context, userID, sessionID string, traces []voiceflow.Trace, depth int) []voiceflow.Trace {
	out := make([]voiceflow.Trace, 0, len(traces))
	for _, t := range traces {
		if t.Type != voiceflow.TracePath {
			out = append(out, t)
			continue
		}
		if depth >= o.maxPathDepth {
			o.logger.Warn("path recursion limit reached, failing closed",
				"user_id", userID,
				"path", t.Payload.Path,
			)
			out = append(out, o.fallbackTrace())
			continue
		}
		path := strings.TrimPrefix(t.Payload.Path, voiceflow.PathPrefix)
		more, err := o.runtime.Interact(ctx, userID, voiceflow.PathAction(path, t.Payload.Label), voiceflow.InteractOptions{
			SessionID: sessionID,
		})
		if err != nil {
			o.metrics.ObserveInteract("error")
			o.logger.Error("path continuation failed",
				"error", err,
				"user_id", userID,
				"path", t.Payload.Path,
			)
			out = append(out, o.fallbackTrace())
			continue
		}
		o.metrics.ObserveInteract("ok")
		out = append(out, o.expandPaths(ctx, userID, sessionID, more, depth+1)...)
	}
	return out
}

// recordTranscript appends to the transcript store out-of-band. The primary
// flow never waits on it and never fails because of it.
func (o *Orchestrator) recordTranscript(sessionID string, msg TranscriptMessage) {
	if o.transcripts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := o.transcripts.Append(ctx, sessionID, msg); err != nil {
			o.logger.Warn("failed to record transcript", "error", err, "session_id", sessionID)
		}
	}()
}

func (o *Orchestrator) fallbackTrace() voiceflow.Trace {
	return voiceflow.Trace{
		Type:    voiceflow.TraceText,
		Payload: voiceflow.TracePayload{Message: o.fallbackMessage},
	}
}

func hasEnd(traces []voiceflow.Trace) bool {
	for _, t := range traces {
		if t.Type == voiceflow.TraceEnd {
			return true
		}
	}
	return false
}

func describeAction(action voiceflow.Action) string {
	switch payload := action.Payload.(type) {
	case string:
		return payload
	case voiceflow.IntentPayload:
		return payload.Query
	default:
		return action.Type
	}
}
