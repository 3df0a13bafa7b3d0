// Package app contains the resource engine services: the action router, the
// app type registry and the expiry reaper.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kamostudio/restack/adapters/clock"
	"github.com/kamostudio/restack/adapters/idgen"
	"github.com/kamostudio/restack/adapters/metrics"
	"github.com/kamostudio/restack/adapters/remap"
	"github.com/kamostudio/restack/domain/apptype"
	"github.com/kamostudio/restack/domain/expiry"
	"github.com/kamostudio/restack/domain/resource"
	"github.com/kamostudio/restack/domain/schemaval"
	"github.com/kamostudio/restack/ports"
)

// Kind identifies one of the six resource actions.
type Kind string

const (
	KindQuery  Kind = "query"
	KindGet    Kind = "get"
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindPatch  Kind = "patch"
	KindDelete Kind = "delete"
)

// ParseKind parses an action kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindQuery, KindGet, KindCreate, KindUpdate, KindPatch, KindDelete:
		return k, nil
	default:
		return "", fmt.Errorf("unknown action kind %q", s)
	}
}

// ActionDef is the resource-action definition the caller executes against.
type ActionDef struct {
	// Resource is the resource type name (required).
	Resource string

	// Body optionally transforms the input into the effective payload.
	Body map[string]string

	// View optionally names an output transform declared by the type.
	View string
}

// ActionContext carries everything one action invocation needs.
type ActionContext struct {
	// App is the owning tenant; all operations are scoped to it.
	App string

	// User is the acting principal, empty when unauthenticated.
	User string

	// Def is the action definition.
	Def ActionDef

	// Input is the data payload: a single object, or an array of objects
	// for create.
	Input any
}

// EngineDeps contains dependencies for the engine.
type EngineDeps struct {
	Types    ports.TypeRegistry
	Store    ports.ResourceStore
	Remapper ports.Remapper
	Clock    ports.Clock
	IDs      ports.IDGenerator
	Logger   zerolog.Logger
	Metrics  *metrics.Collector // optional
}

// Engine executes resource actions by composing validation, expiration,
// history recording, persistence and view projection.
type Engine struct {
	types   ports.TypeRegistry
	store   ports.ResourceStore
	remap   ports.Remapper
	clock   ports.Clock
	ids     ports.IDGenerator
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewEngine creates an engine. Clock, IDs and Remapper default to the real
// implementations when omitted.
func NewEngine(d EngineDeps) *Engine {
	e := &Engine{
		types:   d.Types,
		store:   d.Store,
		remap:   d.Remapper,
		clock:   d.Clock,
		ids:     d.IDs,
		logger:  d.Logger,
		metrics: d.Metrics,
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.ids == nil {
		e.ids = idgen.UUID{}
	}
	if e.remap == nil {
		e.remap = remap.New()
	}
	return e
}

// Describe returns the resource type an action definition refers to.
func (e *Engine) Describe(appID, typeName string) (*apptype.ResourceType, error) {
	rt, ok := e.types.Lookup(appID, typeName)
	if !ok {
		return nil, &TypeNotDeclaredError{App: appID, Type: typeName}
	}
	return rt, nil
}

// Execute runs one action to completion. All errors are returned to the
// caller; none are swallowed or retried here.
func (e *Engine) Execute(ctx context.Context, kind Kind, ac ActionContext) (any, error) {
	start := time.Now()
	out, err := e.execute(ctx, kind, ac)

	if e.metrics != nil {
		e.metrics.ActionsTotal.WithLabelValues(ac.App, ac.Def.Resource, string(kind), outcome(err)).Inc()
		e.metrics.ActionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}

	evt := e.logger.Debug()
	if err != nil {
		evt = e.logger.Warn().Err(err)
	}
	evt.Str("app", ac.App).
		Str("type", ac.Def.Resource).
		Str("action", string(kind)).
		Dur("duration", time.Since(start)).
		Msg("resource action executed")

	return out, err
}

func (e *Engine) execute(ctx context.Context, kind Kind, ac ActionContext) (any, error) {
	rt, err := e.Describe(ac.App, ac.Def.Resource)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindQuery:
		return e.query(ctx, rt, ac)
	case KindGet:
		return e.get(ctx, rt, ac)
	case KindCreate:
		return e.create(ctx, rt, ac)
	case KindUpdate:
		return e.update(ctx, rt, ac)
	case KindPatch:
		return e.patch(ctx, rt, ac)
	case KindDelete:
		return e.delete(ctx, rt, ac)
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
}

func (e *Engine) query(ctx context.Context, rt *apptype.ResourceType, ac ActionContext) (any, error) {
	rs, err := e.store.FindAll(ctx, ac.App, rt.Name, e.clock.Now())
	if err != nil {
		return nil, err
	}

	if ac.Def.View != "" {
		return e.projectAll(rt, ac.Def.View, rs)
	}

	out := make([]map[string]any, 0, len(rs))
	for _, r := range rs {
		out = append(out, resource.Envelope(r, rt.IDField))
	}
	return out, nil
}

func (e *Engine) get(ctx context.Context, rt *apptype.ResourceType, ac ActionContext) (any, error) {
	id, err := e.requireID(rt, ac.Input)
	if err != nil {
		return nil, err
	}

	r, err := e.store.FindOne(ctx, ac.App, rt.Name, id)
	if err != nil {
		return nil, mapNotFound(err, rt.Name, id)
	}

	if ac.Def.View != "" {
		return e.project(rt, ac.Def.View, r)
	}
	return resource.Envelope(r, rt.IDField), nil
}

// create validates every item before any row is written; a rejected item
// means no item is persisted. The inserts themselves share one transaction.
func (e *Engine) create(ctx context.Context, rt *apptype.ResourceType, ac ActionContext) (any, error) {
	items, isArray := asItems(ac.Input)
	now := e.clock.Now()

	prepared := make([]resource.Resource, 0, len(items))
	for _, item := range items {
		payload, err := e.resolvePayload(ac.Def, item)
		if err != nil {
			return nil, err
		}

		data, fields, err := resource.SplitReserved(payload, rt.IDField)
		if err != nil {
			return nil, validationFailed(resource.FieldClonable, err.Error())
		}

		if errs := rt.Validate(data, schemaval.Full); errs != nil {
			return nil, &ValidationError{Errors: errs}
		}

		expires, err := expiry.Compute(rt.ExpiresDefault, fields.Expires, now)
		if err != nil {
			return nil, validationFailed(resource.FieldExpires, err.Error())
		}

		r := resource.Resource{
			AppID:     ac.App,
			Type:      rt.Name,
			Data:      data,
			Created:   now,
			Updated:   now,
			Expires:   expires,
			CreatorID: ac.User,
			EditorID:  ac.User,
		}
		if fields.Clonable != nil {
			r.Clonable = *fields.Clonable
		}
		prepared = append(prepared, r)
	}

	out := make([]map[string]any, 0, len(prepared))
	err := e.store.WithTx(ctx, func(tx ports.ResourceTx) error {
		for _, r := range prepared {
			saved, err := tx.Insert(ctx, r)
			if err != nil {
				return err
			}
			out = append(out, resource.Envelope(saved, rt.IDField))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if isArray {
		return out, nil
	}
	return out[0], nil
}

func (e *Engine) update(ctx context.Context, rt *apptype.ResourceType, ac ActionContext) (any, error) {
	return e.mutate(ctx, rt, ac, schemaval.Full)
}

func (e *Engine) patch(ctx context.Context, rt *apptype.ResourceType, ac ActionContext) (any, error) {
	return e.mutate(ctx, rt, ac, schemaval.Partial)
}

// mutate implements update and patch, which share lookup and transaction
// structure and differ in validation mode and write semantics.
func (e *Engine) mutate(ctx context.Context, rt *apptype.ResourceType, ac ActionContext, mode schemaval.Mode) (any, error) {
	id, err := e.requireID(rt, ac.Input)
	if err != nil {
		return nil, err
	}

	payload, err := e.resolvePayload(ac.Def, ac.Input)
	if err != nil {
		return nil, err
	}

	data, fields, err := resource.SplitReserved(payload, rt.IDField)
	if err != nil {
		return nil, validationFailed(resource.FieldClonable, err.Error())
	}

	if errs := rt.Validate(data, mode); errs != nil {
		return nil, &ValidationError{Errors: errs}
	}

	now := e.clock.Now()

	// An explicit override replaces the expiration; otherwise it is
	// unchanged from the prior state.
	var expires *time.Time
	overrideExpires := fields.Expires != nil
	if overrideExpires {
		expires, err = expiry.Compute(0, fields.Expires, now)
		if err != nil {
			return nil, validationFailed(resource.FieldExpires, err.Error())
		}
	}

	var result resource.Resource
	err = e.store.WithTx(ctx, func(tx ports.ResourceTx) error {
		prior, err := tx.FindOne(ctx, ac.App, rt.Name, id)
		if err != nil {
			return err
		}

		if err := e.recordHistory(ctx, tx, rt, prior, ac.User, now); err != nil {
			return err
		}

		next := prior
		next.Data = data
		next.Updated = now
		next.EditorID = ac.User // cleared when no principal is present
		if overrideExpires {
			next.Expires = expires
		}
		if fields.Clonable != nil {
			next.Clonable = *fields.Clonable
		}

		if mode == schemaval.Partial {
			result, err = tx.MergePatch(ctx, next)
			return err
		}
		result = next
		return tx.Replace(ctx, next)
	})
	if err != nil {
		return nil, mapNotFound(err, rt.Name, id)
	}

	return resource.Envelope(result, rt.IDField), nil
}

func (e *Engine) delete(ctx context.Context, rt *apptype.ResourceType, ac ActionContext) (any, error) {
	id, err := e.requireID(rt, ac.Input)
	if err != nil {
		return nil, err
	}

	if err := e.store.Delete(ctx, ac.App, rt.Name, id); err != nil {
		return nil, mapNotFound(err, rt.Name, id)
	}
	return nil, nil
}

// Versions returns a resource's recorded history, newest first.
func (e *Engine) Versions(ctx context.Context, ac ActionContext) (any, error) {
	rt, err := e.Describe(ac.App, ac.Def.Resource)
	if err != nil {
		return nil, err
	}

	id, err := e.requireID(rt, ac.Input)
	if err != nil {
		return nil, err
	}

	vs, err := e.store.ListVersions(ctx, ac.App, rt.Name, id)
	if err != nil {
		return nil, mapNotFound(err, rt.Name, id)
	}

	out := make([]map[string]any, 0, len(vs))
	for _, v := range vs {
		entry := map[string]any{
			"id":                  v.ID,
			resource.FieldCreated: v.Created.UTC().Format(time.RFC3339),
			"data":                v.Data,
		}
		if v.EditorID != "" {
			entry["$editor"] = v.EditorID
		}
		out = append(out, entry)
	}
	return out, nil
}

// resolvePayload produces the effective payload: the action's body transform
// evaluated against the input when present, the input itself otherwise.
func (e *Engine) resolvePayload(def ActionDef, input any) (map[string]any, error) {
	m, ok := input.(map[string]any)
	if !ok {
		return nil, validationFailed("(root)", "payload must be an object")
	}
	if def.Body == nil {
		return m, nil
	}

	resolved, err := e.remap.Remap(def.Body, m)
	if err != nil {
		return nil, fmt.Errorf("resolve action body: %w", err)
	}
	return resolved, nil
}

// requireID extracts the identifier from the payload under the type's id
// field.
func (e *Engine) requireID(rt *apptype.ResourceType, input any) (int64, error) {
	m, ok := input.(map[string]any)
	if !ok {
		return 0, ErrMissingID
	}
	v, ok := m[rt.IDField]
	if !ok || v == nil {
		return 0, ErrMissingID
	}

	id, err := resource.ParseID(v)
	if err != nil {
		return 0, validationFailed(rt.IDField, err.Error())
	}
	return id, nil
}

// asItems normalizes create input into a list, remembering whether the caller
// supplied an array so the result can mirror the input shape.
func asItems(input any) ([]any, bool) {
	switch v := input.(type) {
	case []any:
		return v, true
	case []map[string]any:
		items := make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}
		return items, true
	default:
		return []any{input}, false
	}
}

func mapNotFound(err error, typeName string, id int64) error {
	if errors.Is(err, ports.ErrNotFound) {
		return &NotFoundError{Type: typeName, ID: id}
	}
	return err
}

func outcome(err error) string {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		undeclared *TypeNotDeclaredError
		noView     *UnknownViewError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingID):
		return "invalid"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &notFound), errors.As(err, &undeclared), errors.As(err, &noView):
		return "not_found"
	default:
		return "error"
	}
}
