package app

import (
	"context"
	"time"

	"github.com/kamostudio/restack/domain/apptype"
	"github.com/kamostudio/restack/domain/resource"
	"github.com/kamostudio/restack/ports"
)

// recordHistory persists a snapshot of the resource state an update or patch
// is about to overwrite, according to the type's history policy. It runs
// inside the same transaction as the overwrite; the two are never observably
// inconsistent.
func (e *Engine) recordHistory(ctx context.Context, tx ports.ResourceTx, rt *apptype.ResourceType, prior resource.Resource, editor string, now time.Time) error {
	if !rt.History.Enabled {
		return nil
	}

	v := resource.Version{
		ID:         e.ids.New(),
		ResourceID: prior.ID,
		EditorID:   editor,
		Created:    now,
	}
	if rt.History.Data {
		v.Data = prior.Data
	}
	return tx.InsertVersion(ctx, v)
}
