// Package mq exposes the service operations over AMQP request/reply
// queues.
package mq

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openmatchmaking/auth/internal/apperr"
	"github.com/openmatchmaking/auth/internal/registry"
	"github.com/openmatchmaking/auth/internal/token"
	"github.com/openmatchmaking/auth/internal/users"
)

// Reply is the JSON body published back to the caller's reply queue.
type Reply map[string]any

// ContentField carries successful payloads.
const ContentField = "content"

// ErrorField carries the error envelope.
const ErrorField = "error"

// EventField carries the request correlation id so callers can match
// replies delivered on a shared queue.
const EventField = "event-name"

func contentReply(payload any) Reply {
	return Reply{ContentField: payload}
}

func errorReply(err error) Reply {
	appErr := apperr.AsError(err)
	if appErr == nil {
		appErr = apperr.New(apperr.KindValidation, "Wrong format of the request body.")
	}
	return Reply{ErrorField: appErr.WireBody()}
}

// HandlerFunc processes one request body into a reply. A non-nil error
// means an infrastructure failure; typed domain failures are already
// folded into the reply.
type HandlerFunc func(ctx context.Context, body []byte) (Reply, error)

// Handlers binds the domain services to the queue operations.
type Handlers struct {
	tokens       *token.Manager
	users        *users.Service
	registry     *registry.Service
	accessField  string
	refreshField string
}

// NewHandlers wires the AMQP operation handlers. accessField and
// refreshField name the token fields in request bodies.
func NewHandlers(tokens *token.Manager, userService *users.Service, registryService *registry.Service, accessField, refreshField string) *Handlers {
	return &Handlers{
		tokens:       tokens,
		users:        userService,
		registry:     registryService,
		accessField:  accessField,
		refreshField: refreshField,
	}
}

// decode unmarshals a request body, tolerating surrounding whitespace.
// A malformed body decodes as an empty request so that field validation
// reports the missing fields instead of a parse failure.
func decode(body []byte, dst any) {
	_ = json.Unmarshal([]byte(strings.TrimSpace(string(body))), dst)
}

func (h *Handlers) fields(body []byte) map[string]string {
	raw := map[string]json.RawMessage{}
	decode(body, &raw)

	out := make(map[string]string, len(raw))
	for name, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[name] = s
		}
	}
	return out
}

func requireFields(data map[string]string, names ...string) error {
	fields := apperr.FieldErrors{}
	for _, name := range names {
		if data[name] == "" {
			fields.Add(name, "Field cannot be blank.")
		}
	}
	return fields.Err()
}

// GenerateToken handles `auth.token.new`: credentials in, token pair out.
func (h *Handlers) GenerateToken(ctx context.Context, body []byte) (Reply, error) {
	data := h.fields(body)
	if err := requireFields(data, "username", "password"); err != nil {
		return errorReply(err), nil
	}

	pair, err := h.tokens.Issue(ctx, data["username"], data["password"])
	if err != nil {
		if apperr.AsError(err) == nil {
			return nil, err
		}
		return errorReply(err), nil
	}
	return contentReply(pair), nil
}

// VerifyToken handles `auth.token.verify`: reports whether the supplied
// access token is currently valid.
func (h *Handlers) VerifyToken(ctx context.Context, body []byte) (Reply, error) {
	data := h.fields(body)
	if err := requireFields(data, h.accessField); err != nil {
		return errorReply(err), nil
	}

	if _, err := h.tokens.Verify(data[h.accessField]); err != nil {
		return errorReply(err), nil
	}
	return contentReply(map[string]bool{"is_valid": true}), nil
}

// RefreshToken handles `auth.token.refresh`: exchanges a refresh token
// for a new access token.
func (h *Handlers) RefreshToken(ctx context.Context, body []byte) (Reply, error) {
	data := h.fields(body)
	if err := requireFields(data, h.refreshField); err != nil {
		return errorReply(err), nil
	}

	accessToken, err := h.tokens.Refresh(ctx, data[h.accessField], data[h.refreshField])
	if err != nil {
		if apperr.AsError(err) == nil {
			return nil, err
		}
		return errorReply(err), nil
	}
	return contentReply(map[string]string{h.accessField: accessToken}), nil
}

// RegisterClient handles `auth.users.register`: creates a game client
// account.
func (h *Handlers) RegisterClient(ctx context.Context, body []byte) (Reply, error) {
	var req users.RegisterRequest
	decode(body, &req)

	created, err := h.users.Register(ctx, req)
	if err != nil {
		if apperr.AsError(err) == nil {
			return nil, err
		}
		return errorReply(err), nil
	}
	return contentReply(created), nil
}

// UserProfile handles `auth.users.retrieve`: resolves the profile and
// effective permissions behind an access token.
func (h *Handlers) UserProfile(ctx context.Context, body []byte) (Reply, error) {
	data := h.fields(body)
	if err := requireFields(data, h.accessField); err != nil {
		return errorReply(err), nil
	}

	claims, err := h.tokens.Verify(data[h.accessField])
	if err != nil {
		return errorReply(err), nil
	}

	profile, err := h.users.ProfileByID(ctx, claims.UserID)
	if err != nil {
		if apperr.AsError(err) == nil {
			return nil, err
		}
		return errorReply(err), nil
	}
	return contentReply(profile), nil
}

// RegisterMicroservice handles `auth.microservices.register`. Its replies
// carry an explicit status field and no correlation echo.
func (h *Handlers) RegisterMicroservice(ctx context.Context, body []byte) (Reply, error) {
	var decl registry.Declaration
	decode(body, &decl)

	if _, err := h.registry.Register(ctx, decl); err != nil {
		if apperr.AsError(err) == nil {
			return nil, err
		}
		reply := errorReply(err)
		reply["status"] = 400
		return reply, nil
	}
	return Reply{ContentField: "OK", "status": 200}, nil
}
