package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-checkout/api/responses"
	"github.com/angelmondragon/marketplace-checkout/api/validators"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	pkgredis "github.com/angelmondragon/marketplace-checkout/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	// pending claims expire on their own if the process dies mid-request
	pendingClaimTTL = 2 * time.Minute

	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"
)

// idempotencyRule matches a route template segment by segment. A `{param}`
// or `*` segment matches any single segment.
type idempotencyRule struct {
	method   string
	template string
	critical bool
	required bool
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, template: "/api/v1/checkout", critical: true, required: true},
	{method: http.MethodPost, template: "/api/v1/cart/items"},
	{method: http.MethodPatch, template: "/api/v1/seller/orders/{orderId}/status"},
	{method: http.MethodPatch, template: "/api/v1/seller/orders/{orderId}/payment"},
}

func (rule idempotencyRule) matches(method, path string) bool {
	if rule.method != method {
		return false
	}
	want := strings.Split(rule.template, "/")
	got := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		wildcard := seg == "*" || (strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"))
		if !wildcard && seg != got[i] {
			return false
		}
		if wildcard && got[i] == "" {
			return false
		}
	}
	return true
}

func matchRule(method, path string) (idempotencyRule, bool) {
	if path == "" {
		return idempotencyRule{}, false
	}
	for _, rule := range idempotencyRules {
		if rule.matches(method, path) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

// storedResponse is the value kept under an idempotency key. A pending
// record marks a request that is still running.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

func (s storedResponse) encode() (string, error) {
	raw, err := json.Marshal(s)
	return string(raw), err
}

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// criticalTTL applies to checkout; zero falls back to seven days. Server
// errors and rate limit rejections are not stored so the client can retry
// with the same key.
func Idempotency(store pkgredis.IdempotencyStore, criticalTTL time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if criticalTTL <= 0 {
		criticalTTL = criticalIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, routePath(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				if rule.required {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
			if err != nil {
				msg := "read request body"
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					msg = "request body too large"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ttl := defaultIdempotencyTTL
			if rule.critical {
				ttl = criticalTTL
			}
			k := keyed{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(requestScope(r), clientKey),
				hash:  fingerprint(body),
				ttl:   ttl,
			}
			k.serve(w, r, next)
		})
	}
}

// keyed is one request carrying an idempotency key.
type keyed struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
	key   string
	hash  string
	ttl   time.Duration
}

func (k keyed) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	claim, _ := storedResponse{Pending: true, RequestHash: k.hash}.encode()
	claimed, err := k.store.SetNX(ctx, k.key, claim, pendingClaimTTL)
	if err != nil {
		responses.WriteError(ctx, k.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
		return
	}
	if !claimed {
		k.replayOrReject(ctx, w)
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	k.settle(context.WithoutCancel(ctx), capture)
}

// settle overwrites the pending claim with the final response, or releases
// it when the response must not be replayed.
func (k keyed) settle(ctx context.Context, capture *responseCapture) {
	status := capture.statusCode()
	if !storable(status) {
		k.release(ctx)
		return
	}
	record, err := storedResponse{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		RequestHash: k.hash,
	}.encode()
	if err != nil {
		k.logFailure(ctx, "idempotency.encode_failed", err)
		k.release(ctx)
		return
	}
	if err := k.store.Set(ctx, k.key, record, k.ttl); err != nil {
		k.logFailure(ctx, "idempotency.store_failed", err)
	}
}

func (k keyed) release(ctx context.Context) {
	if err := k.store.Del(ctx, k.key); err != nil {
		k.logFailure(ctx, "idempotency.release_failed", err)
	}
}

func (k keyed) replayOrReject(ctx context.Context, w http.ResponseWriter) {
	raw, err := k.store.Get(ctx, k.key)
	if errors.Is(err, redis.Nil) {
		// the first request released its claim between our SetNX and Get
		responses.WriteError(ctx, k.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, k.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, k.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	switch {
	case stored.RequestHash != k.hash:
		responses.WriteError(ctx, k.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.Pending:
		responses.WriteError(ctx, k.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress"))
	default:
		stored.replay(w)
	}
}

func (k keyed) logFailure(ctx context.Context, msg string, err error) {
	if k.logg != nil {
		k.logg.Error(ctx, msg, err)
	}
}

// requestScope keeps keys from different users or endpoints apart.
func requestScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func storable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}

// routePath prefers chi's matched pattern. A group middleware only sees the
// mount pattern (e.g. /api/v1/*), so it falls back to the request path.
func routePath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
