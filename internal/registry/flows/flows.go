package flows

import (
	"context"
	"log"
	"time"

	"github.com/registrolabs/corenic/internal/epp"
	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/registry/model"
	"github.com/registrolabs/corenic/internal/registry/projection"
	"github.com/registrolabs/corenic/internal/registry/storage"
	"github.com/registrolabs/corenic/internal/registry/transfer"
)

// Flows builds the per-command flow functions.
type Flows struct {
	Logger *log.Logger
	// TransferWindow overrides the automatic-approval window. Zero uses the
	// transfer package default.
	TransferWindow time.Duration
	// TransferFeeCents overrides the transfer fee. Zero uses the default.
	TransferFeeCents int64
	// NewID overrides record id minting, for deterministic tests.
	NewID func() string
	// NewRepoID overrides repository id minting, for deterministic tests.
	NewRepoID func() string
}

func (f *Flows) transferOptions() transfer.Options {
	return transfer.Options{
		Window:   f.TransferWindow,
		FeeCents: f.TransferFeeCents,
		NewID:    f.NewID,
	}
}

func (f *Flows) newRepoID() string {
	if f.NewRepoID != nil {
		return f.NewRepoID()
	}
	return model.NewRepoID()
}

func (f *Flows) projector(tx storage.Transaction) projection.Projector {
	return projection.Projector{Revisions: tx, Logger: f.Logger}
}

// ForCommand routes a validated command to its flow.
func (f *Flows) ForCommand(cmd epp.Command) (FlowFn, error) {
	switch cmd.Op {
	case epp.OpCreate:
		return func(ctx context.Context, tx storage.Transaction) (any, int, error) {
			return f.create(ctx, tx, cmd)
		}, nil
	case epp.OpInfo:
		return func(ctx context.Context, tx storage.Transaction) (any, int, error) {
			return f.info(ctx, tx, cmd)
		}, nil
	case epp.OpDelete:
		return func(ctx context.Context, tx storage.Transaction) (any, int, error) {
			return f.delete(ctx, tx, cmd)
		}, nil
	case epp.OpUpdate:
		return func(ctx context.Context, tx storage.Transaction) (any, int, error) {
			return f.update(ctx, tx, cmd)
		}, nil
	case epp.OpTransferRequest:
		return func(ctx context.Context, tx storage.Transaction) (any, int, error) {
			return f.transferRequest(ctx, tx, cmd)
		}, nil
	case epp.OpTransferApprove, epp.OpTransferReject, epp.OpTransferCancel:
		return func(ctx context.Context, tx storage.Transaction) (any, int, error) {
			return f.transferResolve(ctx, tx, cmd)
		}, nil
	case epp.OpTransferQuery:
		return func(ctx context.Context, tx storage.Transaction) (any, int, error) {
			return f.transferQuery(ctx, tx, cmd)
		}, nil
	default:
		return nil, apperrors.New(apperrors.CodeCommandUse, "unknown command operation")
	}
}

func kindOf(rt epp.ResourceType) model.Kind {
	switch rt {
	case epp.ResourceDomain:
		return model.KindDomain
	case epp.ResourceContact:
		return model.KindContact
	case epp.ResourceHost:
		return model.KindHost
	}
	return model.KindUnspecified
}

// loadStored resolves the target's foreign key at the transaction instant
// and loads the STORED snapshot. Mutating flows work from stored state;
// read flows project afterwards.
func loadStored(ctx context.Context, tx storage.Transaction, kind model.Kind, name string) (model.Resource, error) {
	entry, err := tx.ResolveForeignKey(ctx, kind, name, tx.Instant())
	if err != nil {
		return nil, err
	}
	res, err := tx.GetResource(ctx, entry.RepoID)
	if err != nil {
		return nil, err
	}
	if !res.Life().ActiveAt(tx.Instant()) {
		return nil, storage.ErrNotFound
	}
	return res, nil
}

// checkSponsor requires the acting registrar to sponsor the resource.
func checkSponsor(res model.Resource, acting string, superuser bool) error {
	if superuser || res.Life().SponsoringRegistrar == acting {
		return nil
	}
	return apperrors.New(apperrors.CodeAuthorization, "registrar does not sponsor the object")
}

// materializeTransfer folds a deadline-expired pending transfer into the
// stored state a mutating flow is about to operate on: the same rewrite the
// read-time projection performs, made durable because the flow will persist
// the resource. The speculative records are not retracted; past their event
// time they are ordinary records. Explicit transfer resolutions never call
// this, so a late rejection still operates on the stored PENDING state.
func materializeTransfer(res model.Resource, at time.Time) bool {
	transferData := res.Transfer()
	if transferData == nil || transferData.Status != model.TransferPending {
		return false
	}
	if at.Before(transferData.PendingExpirationTime) {
		return false
	}
	life := res.Life()
	transferData.Status = model.TransferServerApproved
	transferData.ServerApproveEntityKeys = nil
	life.SponsoringRegistrar = transferData.GainingRegistrar
	life.LastUpdatingRegistrar = transferData.GainingRegistrar
	life.Statuses = life.Statuses.Without(model.StatusPendingTransfer)
	return true
}

// checkAuthInfo verifies the caller-supplied authorization password against
// the one stored on the resource. Superusers bypass the check.
func checkAuthInfo(res model.Resource, provided string, superuser bool) error {
	if superuser {
		return nil
	}
	var stored string
	switch v := res.(type) {
	case *model.Domain:
		stored = v.AuthInfo
	case *model.Contact:
		stored = v.AuthInfo
	}
	if stored == "" || provided != stored {
		return apperrors.New(apperrors.CodeAuthorization, "invalid authorization information")
	}
	return nil
}

// checkProhibitions rejects the operation when any of the given status
// flags is set. Superusers bypass client-imposed and server-imposed flags
// alike.
func checkProhibitions(res model.Resource, superuser bool, blocked ...model.Status) error {
	if superuser {
		return nil
	}
	statuses := res.Life().Statuses
	for _, status := range blocked {
		if statuses.Has(status) {
			return apperrors.WithMetadata(
				apperrors.CodeStatusProhibitsOperation,
				"object status prohibits operation",
				map[string]string{"status": string(status)},
			)
		}
	}
	return nil
}

// applyTransferOutcome applies a transfer transition to the resource and
// persists its side-effect records inside the owning transaction.
func applyTransferOutcome(ctx context.Context, tx storage.Transaction, res model.Resource, outcome transfer.Outcome, acting string) error {
	for _, key := range outcome.RetractKeys {
		recordID, isPoll, err := transfer.SplitEntityKey(key)
		if err != nil {
			return err
		}
		if isPoll {
			if err := tx.DeletePollMessage(ctx, recordID); err != nil {
				return err
			}
		} else if err := tx.DeleteBillingEvent(ctx, recordID); err != nil {
			return err
		}
	}
	for _, msg := range outcome.PollMessages {
		if err := tx.PutPollMessage(ctx, msg); err != nil {
			return err
		}
	}
	for _, evt := range outcome.BillingEvents {
		if err := tx.PutBillingEvent(ctx, evt); err != nil {
			return err
		}
	}

	life := res.Life()
	*res.Transfer() = outcome.Transfer
	for _, status := range outcome.AddStatuses {
		life.Statuses = life.Statuses.With(status)
	}
	for _, status := range outcome.RemoveStatuses {
		life.Statuses = life.Statuses.Without(status)
	}
	if outcome.NewSponsor != "" {
		life.SponsoringRegistrar = outcome.NewSponsor
	}
	life.LastUpdatingRegistrar = acting

	return tx.PutResource(ctx, res)
}
