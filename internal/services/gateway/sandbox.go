package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/utils"
)

const sandboxTolerance = 5 * time.Minute

type SandboxConfig struct {
	WebhookSecret string
	// CheckoutBaseURL prefixes the hosted checkout URL handed to clients.
	CheckoutBaseURL string
}

// Sandbox is an in-memory provider for development. Completing a session
// yields a webhook payload signed the same way Stripe signs its events.
type Sandbox struct {
	secret  []byte
	baseURL string
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSandbox(cfg *SandboxConfig) (*Sandbox, error) {
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("sandbox webhook secret is required")
	}
	return &Sandbox{
		secret:   []byte(cfg.WebhookSecret),
		baseURL:  strings.TrimRight(cfg.CheckoutBaseURL, "/"),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

func (s *Sandbox) Name() Provider { return ProviderSandbox }

func (s *Sandbox) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	id, err := utils.GenerateID("cs_sandbox", 12)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, item := range req.LineItems {
		total += item.UnitAmount * item.Quantity
	}

	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	s.mu.Lock()
	s.sessions[id] = &Session{
		ID:            id,
		PaymentStatus: PaymentStatusUnpaid,
		AmountTotal:   total,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		Metadata:      metadata,
	}
	s.mu.Unlock()

	return &CheckoutSession{ID: id, URL: fmt.Sprintf("%s/sandbox/checkout/%s", s.baseURL, id)}, nil
}

func (s *Sandbox) RetrieveSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, status.Newf(status.KindNotFound, "checkout session %s not found", sessionID)
	}
	out := *sess
	return &out, nil
}

type sandboxEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object sandboxSession `json:"object"`
	} `json:"data"`
}

type sandboxSession struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// Complete marks the session paid and returns the signed webhook delivery
// a real provider would send.
func (s *Sandbox) Complete(_ context.Context, sessionID string) (payload []byte, signature string, err error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, "", status.Newf(status.KindNotFound, "checkout session %s not found", sessionID)
	}
	if sess.PaymentIntentID == "" {
		pi, err := utils.GenerateID("pi_sandbox", 12)
		if err != nil {
			s.mu.Unlock()
			return nil, "", err
		}
		sess.PaymentIntentID = pi
	}
	sess.PaymentStatus = PaymentStatusPaid
	snapshot := *sess
	s.mu.Unlock()

	eventID, err := utils.GenerateID("evt_sandbox", 12)
	if err != nil {
		return nil, "", err
	}

	var ev sandboxEvent
	ev.ID = eventID
	ev.Type = EventCheckoutCompleted
	ev.Data.Object = sandboxSession{
		ID:            snapshot.ID,
		PaymentStatus: snapshot.PaymentStatus,
		AmountTotal:   snapshot.AmountTotal,
		Currency:      snapshot.Currency,
		CustomerEmail: snapshot.CustomerEmail,
		PaymentIntent: snapshot.PaymentIntentID,
		Metadata:      snapshot.Metadata,
	}

	payload, err = json.Marshal(ev)
	if err != nil {
		return nil, "", err
	}
	return payload, s.Sign(payload, s.now()), nil
}

// Sign builds a "t=<unix>,v1=<hex>" header for payload.
func (s *Sandbox) Sign(payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, Hmac256(signedContent(ts, payload), s.secret))
}

func (s *Sandbox) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	ts, sigs, err := parseSignatureHeader(signature)
	if err != nil {
		return nil, err
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, status.New(status.KindInvalidSignature, "invalid signature timestamp")
	}
	if age := s.now().Sub(time.Unix(sec, 0)); age > sandboxTolerance || age < -sandboxTolerance {
		return nil, status.New(status.KindInvalidSignature, "signature timestamp outside tolerance")
	}

	expected := []byte(Hmac256(signedContent(ts, payload), s.secret))
	matched := false
	for _, sig := range sigs {
		if hmac.Equal(expected, []byte(sig)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, status.ErrInvalidSignature
	}

	var ev sandboxEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, status.Wrap(status.KindValidation, "malformed webhook payload", err)
	}

	out := &WebhookEvent{ID: ev.ID, Type: ev.Type}
	if ev.Type == EventCheckoutCompleted {
		obj := ev.Data.Object
		out.Session = &Session{
			ID:              obj.ID,
			PaymentStatus:   obj.PaymentStatus,
			AmountTotal:     obj.AmountTotal,
			Currency:        obj.Currency,
			CustomerEmail:   obj.CustomerEmail,
			PaymentIntentID: obj.PaymentIntent,
			Metadata:        obj.Metadata,
		}
	}
	return out, nil
}

// Hmac256 returns the hex encoded HMAC-SHA256 of body under key.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

func signedContent(ts string, payload []byte) []byte {
	content := make([]byte, 0, len(ts)+1+len(payload))
	content = append(content, ts...)
	content = append(content, '.')
	return append(content, payload...)
}

func parseSignatureHeader(header string) (string, []string, error) {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return "", nil, status.New(status.KindInvalidSignature, "malformed signature header")
	}
	return ts, sigs, nil
}
