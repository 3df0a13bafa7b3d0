package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kamostudio/restack/app"
)

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, app.KindQuery, nil)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	h.execute(w, r, app.KindCreate, input)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.executeByID(w, r, app.KindGet, nil)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeObject(w, r)
	if !ok {
		return
	}
	h.executeByID(w, r, app.KindUpdate, payload)
}

func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeObject(w, r)
	if !ok {
		return
	}
	h.executeByID(w, r, app.KindPatch, payload)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	h.executeByID(w, r, app.KindDelete, nil)
}

func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	ac, err := h.actionContext(r, nil, true)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.engine.Versions(r.Context(), ac)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// execute runs an action whose payload does not carry an id.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, kind app.Kind, input any) {
	ac, err := h.actionContext(r, input, false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.run(w, r, kind, ac)
}

// executeByID runs an action addressed by the {id} path parameter; the id is
// injected into the payload under the type's declared id field.
func (h *Handler) executeByID(w http.ResponseWriter, r *http.Request, kind app.Kind, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	ac, err := h.actionContext(r, payload, true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.run(w, r, kind, ac)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, kind app.Kind, ac app.ActionContext) {
	result, err := h.engine.Execute(r.Context(), kind, ac)
	if err != nil {
		h.writeError(w, err)
		return
	}

	switch kind {
	case app.KindCreate:
		writeJSON(w, http.StatusCreated, result)
	case app.KindDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// actionContext assembles the engine invocation from the request. When
// withID is set, the {id} path parameter is written into the payload under
// the type's id field (the payload's own value, if any, is overridden by the
// addressed resource).
func (h *Handler) actionContext(r *http.Request, input any, withID bool) (app.ActionContext, error) {
	appID := chi.URLParam(r, "app")
	typeName := chi.URLParam(r, "type")

	ac := app.ActionContext{
		App:  appID,
		User: r.Header.Get(PrincipalHeader),
		Def: app.ActionDef{
			Resource: typeName,
			View:     r.URL.Query().Get("view"),
		},
		Input: input,
	}

	if withID {
		rt, err := h.engine.Describe(appID, typeName)
		if err != nil {
			return app.ActionContext{}, err
		}
		payload, ok := input.(map[string]any)
		if !ok || payload == nil {
			payload = make(map[string]any, 1)
		}
		payload[rt.IDField] = chi.URLParam(r, "id")
		ac.Input = payload
	}

	return ac, nil
}

func (h *Handler) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return nil, false
	}
	return payload, true
}

// writeError maps the engine's error taxonomy to status codes: not-found and
// undeclared types to 404, missing id and validation failures to 400,
// everything else to 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		validation *app.ValidationError
		notFound   *app.NotFoundError
		undeclared *app.TypeNotDeclaredError
		noView     *app.UnknownViewError
	)

	switch {
	case errors.Is(err, app.ErrMissingID):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "resource validation failed",
			"errors": validation.Errors,
		})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "resource not found"})
	case errors.As(err, &undeclared), errors.As(err, &noView):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Msg("resource action failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
