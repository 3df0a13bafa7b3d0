package app

import (
	"fmt"

	"github.com/kamostudio/restack/domain/apptype"
	"github.com/kamostudio/restack/domain/resource"
)

// project applies a named view to one resource. The view's output replaces
// the standard metadata envelope entirely; the remapper sees the envelope so
// views can reference the id and timestamps as well as the data.
func (e *Engine) project(rt *apptype.ResourceType, viewName string, r resource.Resource) (map[string]any, error) {
	view, ok := rt.View(viewName)
	if !ok {
		return nil, &UnknownViewError{Type: rt.Name, View: viewName}
	}

	out, err := e.remap.Remap(view.Remap, resource.Envelope(r, rt.IDField))
	if err != nil {
		return nil, fmt.Errorf("apply view %q: %w", viewName, err)
	}
	return out, nil
}

// projectAll applies a named view to each resource in order.
func (e *Engine) projectAll(rt *apptype.ResourceType, viewName string, rs []resource.Resource) (any, error) {
	out := make([]map[string]any, 0, len(rs))
	for _, r := range rs {
		projected, err := e.project(rt, viewName, r)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}
