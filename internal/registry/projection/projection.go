// Package projection reconstructs resource state as of an arbitrary instant.
//
// Projection is pure with respect to the store: it clones, never mutates a
// stored snapshot, and never writes. Pending transfers whose deadline has
// passed project as automatically approved, which is how automatic approval
// happens at all; no scheduler runs.
package projection

import (
	"context"
	"log"
	"time"

	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/registry/model"
)

// ErrAbsent indicates the resource does not exist at the projection instant:
// before its creation, at or after its deletion, or nil input.
var ErrAbsent = apperrors.New(apperrors.CodeNotFound, "object does not exist")

// RevisionSource loads historical snapshots by revision token.
type RevisionSource interface {
	GetRevision(ctx context.Context, repoID, token string) (model.Resource, error)
}

// Projector reconstructs point-in-time views of resources.
type Projector struct {
	// Revisions supplies historical snapshots for past-dated projections.
	Revisions RevisionSource
	// Logger receives degraded-fallback warnings. Nil disables them.
	Logger *log.Logger
}

// AtTime returns the resource's state as of instant at, or ErrAbsent when it
// does not exist then. The returned resource is always an independent clone.
//
// When at predates the stored snapshot's last update, the latest revision at
// or before at is loaded instead. A missing revision degrades to the oldest
// available snapshot with a logged warning rather than failing the read.
func (p Projector) AtTime(ctx context.Context, res model.Resource, at time.Time) (model.Resource, error) {
	if res == nil {
		return nil, ErrAbsent
	}

	life := res.Life()
	if at.Before(life.CreationTime) || life.CreationTime.IsZero() {
		return nil, ErrAbsent
	}

	base, err := p.snapshotFor(ctx, res, at)
	if err != nil {
		return nil, err
	}

	projectTransfer(base, at)

	if !at.Before(base.Life().DeletionTime) {
		return nil, ErrAbsent
	}
	return base, nil
}

// snapshotFor picks the snapshot whose commit history covers instant at:
// the current one when it was last written at or before at, otherwise the
// floor revision.
func (p Projector) snapshotFor(ctx context.Context, res model.Resource, at time.Time) (model.Resource, error) {
	life := res.Life()
	if !life.LastUpdateTime.After(at) {
		return res.Clone(), nil
	}

	pointer, ok := floorRevision(life.Revisions, at)
	if !ok {
		// The resource existed at the instant but predates its oldest
		// revision. Serve the oldest state we can reconstruct.
		return p.degraded(ctx, res, at, "no revision at or before instant")
	}

	rev, err := p.Revisions.GetRevision(ctx, life.RepoID, pointer.Token)
	if err != nil {
		return p.degraded(ctx, res, at, "revision load failed: "+err.Error())
	}
	return rev.Clone(), nil
}

// floorRevision returns the latest pointer whose date is at or before at.
// Pointers are ordered by date ascending.
func floorRevision(revisions []model.RevisionPointer, at time.Time) (model.RevisionPointer, bool) {
	for i := len(revisions) - 1; i >= 0; i-- {
		if !revisions[i].Date.After(at) {
			return revisions[i], true
		}
	}
	return model.RevisionPointer{}, false
}

// degraded serves the best remaining approximation of a past state: the
// oldest loadable revision, or the current snapshot when none load.
func (p Projector) degraded(ctx context.Context, res model.Resource, at time.Time, reason string) (model.Resource, error) {
	life := res.Life()
	if p.Logger != nil {
		p.Logger.Printf("projection degraded for %s at %s: %s", life.RepoID, at.Format(time.RFC3339), reason)
	}
	for _, pointer := range life.Revisions {
		rev, err := p.Revisions.GetRevision(ctx, life.RepoID, pointer.Token)
		if err == nil {
			return rev.Clone(), nil
		}
	}
	return res.Clone(), nil
}

// projectTransfer rewrites a pending transfer as automatically approved when
// the projection instant has reached its deadline. The rewrite touches only
// the clone; resolution legality elsewhere is judged from stored state.
func projectTransfer(res model.Resource, at time.Time) {
	transfer := res.Transfer()
	if transfer == nil || transfer.Status != model.TransferPending {
		return
	}
	if at.Before(transfer.PendingExpirationTime) {
		return
	}

	life := res.Life()
	transfer.Status = model.TransferServerApproved
	life.SponsoringRegistrar = transfer.GainingRegistrar
	life.LastUpdatingRegistrar = transfer.GainingRegistrar
	life.Statuses = life.Statuses.Without(model.StatusPendingTransfer)
}

// MutationProjectionTime picks the instant mutating flows project at before
// operating: the transaction instant, or the resource's last update time
// when the group clock has run ahead of this resource.
func MutationProjectionTime(instant time.Time, res model.Resource) time.Time {
	if res == nil {
		return instant
	}
	if last := res.Life().LastUpdateTime; last.After(instant) {
		return last
	}
	return instant
}
