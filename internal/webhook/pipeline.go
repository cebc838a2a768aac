package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hookgate/hookgate/internal/config"
	"github.com/hookgate/hookgate/internal/events"
	"github.com/hookgate/hookgate/internal/metrics"
	"github.com/zeebo/blake3"
)

// AgentVersion is stamped into every DecisionEvent.
const AgentVersion = "0.1.0"

// Sink receives decisions for persistence. Failures are logged and counted,
// never surfaced to webhook callers.
type Sink interface {
	Record(ctx context.Context, d *Decision) error
}

// Deps carries the pipeline's collaborators. Clock and HTTPClient are
// injectable for tests; nil values get production defaults.
type Deps struct {
	Sink           Sink
	Hub            *events.Hub
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Clock          func() time.Time
	HTTPClient     *http.Client
	SweepInterval  time.Duration
	RequestTimeout time.Duration
}

// Pipeline sequences verification for a single connector:
// payload -> signature -> replay -> source IP -> extraction -> scoring.
// Configuration is immutable for the pipeline's lifetime. The only shared
// mutable state across invocations is the replay cache.
type Pipeline struct {
	connector string
	cfg       config.ConnectorConfig

	payload  *PayloadGuard
	verifier *Verifier
	guard    *ReplayGuard
	filter   *SourceIPFilter

	sink    Sink
	hub     *events.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	sinkWG sync.WaitGroup
}

// New builds a pipeline for one connector.
func New(connector string, cfg config.ConnectorConfig, deps Deps) (*Pipeline, error) {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = config.DefaultRequestTimeout
	}

	verifier, err := NewVerifier(cfg.Signature, deps.HTTPClient)
	if err != nil {
		return nil, err
	}
	filter, err := NewSourceIPFilter(cfg.AllowedSourceIPs)
	if err != nil {
		return nil, err
	}

	var retention time.Duration
	if cfg.Signature != nil {
		retention = time.Duration(cfg.Signature.ToleranceSeconds) * time.Second
	}

	logger := deps.Logger.With("connector", connector)
	return &Pipeline{
		connector: connector,
		cfg:       cfg,
		payload:   NewPayloadGuard(cfg.AllowedContentTypes, cfg.MaxPayloadBytes, cfg.RequiredFields),
		verifier:  verifier,
		guard:     NewReplayGuard(retention, deps.SweepInterval, deps.Clock, logger),
		filter:    filter,
		sink:      deps.Sink,
		hub:       deps.Hub,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       deps.Clock,
		timeout:   deps.RequestTimeout,
	}, nil
}

// Start launches the replay sweeper when replay protection is active.
func (p *Pipeline) Start() {
	if p.replayActive() {
		p.guard.Start()
	}
}

// Stop cancels the sweeper and waits for in-flight persistence handoffs.
func (p *Pipeline) Stop() {
	p.guard.Stop()
	p.sinkWG.Wait()
}

// Connector returns the connector id this pipeline serves.
func (p *Pipeline) Connector() string { return p.connector }

// Path returns the ingress URL path for this connector.
func (p *Pipeline) Path() string { return p.cfg.Path }

// MaxPayloadBytes returns the connector's body size limit.
func (p *Pipeline) MaxPayloadBytes() int64 { return p.cfg.MaxPayloadBytes }

func (p *Pipeline) replayActive() bool {
	return p.cfg.ReplayProtection && p.verifier.UsesTimestamp()
}

// Process runs one request through the pipeline. It returns exactly one of:
// a DecisionEvent (success) or a *PipelineError with a typed failure code.
// Failed runs emit no DecisionEvent.
func (p *Pipeline) Process(ctx context.Context, req *IncomingRequest) (*DecisionEvent, error) {
	start := p.now()
	now := start

	// 1. Payload validation. Structural violations (content type, size,
	// malformed JSON) are terminal; required-field issues only downgrade
	// the schema verdict and the confidence score.
	issues := p.payload.Validate(req)
	schemaValid := true
	for _, issue := range issues {
		switch issue.Code {
		case IssueRequiredFieldMissing:
			schemaValid = false
		default:
			return nil, p.reject(&PipelineError{
				Code:   FailPayloadValidation,
				Issues: issues,
				msg:    issue.Message,
			}, start)
		}
	}

	// 2. Signature verification.
	sig := p.verifier.Verify(ctx, req, now)
	if !sig.Valid {
		p.logger.Warn("signature verification failed",
			"method", sig.Method,
			"timestamp_valid", sig.TimestampValid,
			"reason", sig.Error,
		)
		return nil, p.reject(failf(FailSignatureVerification, "signature verification failed"), start)
	}

	// 3. Replay check, only for schemes that bind a timestamp.
	if p.replayActive() {
		ts := req.Header(p.verifier.TimestampHeader())
		digest := ReplayDigest(req.Body, ts)
		tolerance := int64(p.cfg.Signature.ToleranceSeconds)
		if !p.guard.CheckAndRecord(digest, now.Unix(), tolerance) {
			if p.metrics != nil {
				p.metrics.ReplayRejects.WithLabelValues(p.connector).Inc()
			}
			return nil, p.reject(failf(FailReplayDetected, "duplicate delivery within tolerance window"), start)
		}
		if p.metrics != nil {
			p.metrics.ReplayCacheSize.WithLabelValues(p.connector).Set(float64(p.guard.Size()))
		}
	}

	// 4. Source IP filter (fail closed when configured).
	if !p.filter.Allowed(req.SourceIP) {
		return nil, p.reject(failf(FailSourceIPNotAllowed, "source address not in allow-list"), start)
	}

	// 5. Canonical field extraction.
	eventType := ExtractEventType(req.ParsedBody, req.Path)
	identifiers := ExtractIdentifiers(req.ParsedBody)
	completeness := Completeness(req.ParsedBody, len(req.Body))

	// 6. Confidence scoring.
	confidence := ScoreConfidence(sig, schemaValid, completeness)

	// 7. Artifact and DecisionEvent assembly.
	bodyHash := sha256.Sum256(req.Body)
	inputsHash := hex.EncodeToString(bodyHash[:])

	payload := req.ParsedBody
	if payload == nil {
		payload = map[string]any{}
	}

	artifact := WebhookArtifact{
		SourceID:            p.connector,
		EventType:           eventType,
		Payload:             payload,
		OriginalPayloadHash: inputsHash,
	}
	if !identifiers.Empty() {
		artifact.Identifiers = &identifiers
	}

	event := &DecisionEvent{
		AgentID:      p.connector,
		AgentVersion: AgentVersion,
		DecisionType: DecisionTypeWebhookIngest,
		InputsHash:   inputsHash,
		Outputs:      artifact,
		Confidence:   confidence,
		ConstraintsApplied: ConstraintsApplied{
			ConnectorScope:   p.cfg.Scope,
			SchemaBoundaries: p.payload.RequiredFields(),
			SizeLimitBytes:   p.cfg.MaxPayloadBytes,
			TimeoutMS:        p.timeout.Milliseconds(),
		},
		ExecutionRef: uuid.NewString(),
		Timestamp:    now.UTC().Format(time.RFC3339),
	}

	decision := &Decision{
		Connector:      p.connector,
		Event:          event,
		Path:           req.Path,
		ContentType:    req.ContentType,
		SourceIPHash:   hashSourceIP(req.SourceIP),
		ReceivedAt:     req.ReceivedAt,
		SignatureValid: sig.Valid,
		SchemaValid:    schemaValid,
		ErrorCount:     len(issues),
	}

	// 8. Fire-and-forget persistence and feed publication. A sink failure
	// never changes the returned status.
	p.persistAsync(decision)
	if p.hub != nil {
		p.hub.Publish(events.TypeDecisionAccepted, map[string]any{
			"connector":      p.connector,
			"execution_ref":  event.ExecutionRef,
			"event_type":     eventType,
			"score":          confidence.Score,
			"auth_assurance": confidence.AuthAssurance,
		})
	}
	p.observe("accepted", start)

	return event, nil
}

func (p *Pipeline) persistAsync(decision *Decision) {
	if p.sink == nil {
		return
	}
	p.sinkWG.Add(1)
	go func() {
		defer p.sinkWG.Done()
		// Detached from the request context: the response may already be
		// written by the time the sink runs.
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.sink.Record(ctx, decision); err != nil {
			p.logger.Error("decision persistence failed",
				"execution_ref", decision.Event.ExecutionRef,
				"error", err,
			)
			if p.metrics != nil {
				p.metrics.SinkFailuresTotal.Inc()
			}
			if p.hub != nil {
				p.hub.Publish(events.TypeSinkFailed, map[string]any{
					"connector":     p.connector,
					"execution_ref": decision.Event.ExecutionRef,
				})
			}
		}
	}()
}

func (p *Pipeline) reject(err *PipelineError, start time.Time) *PipelineError {
	if p.metrics != nil {
		p.metrics.FailuresTotal.WithLabelValues(p.connector, string(err.Code)).Inc()
	}
	if p.hub != nil {
		p.hub.Publish(events.TypeDecisionRejected, map[string]any{
			"connector": p.connector,
			"code":      string(err.Code),
		})
	}
	p.observe("rejected", start)
	return err
}

func (p *Pipeline) observe(outcome string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RequestsTotal.WithLabelValues(p.connector, outcome).Inc()
	p.metrics.ProcessDuration.WithLabelValues(p.connector).Observe(p.now().Sub(start).Seconds())
}

func hashSourceIP(source string) string {
	if source == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
