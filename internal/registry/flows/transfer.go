package flows

import (
	"context"

	"github.com/registrolabs/corenic/internal/epp"
	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/registry/model"
	"github.com/registrolabs/corenic/internal/registry/projection"
	"github.com/registrolabs/corenic/internal/registry/storage"
	"github.com/registrolabs/corenic/internal/registry/transfer"
)

func (f *Flows) transferRequest(ctx context.Context, tx storage.Transaction, cmd epp.Command) (any, int, error) {
	kind := kindOf(cmd.Resource)
	instant := tx.Instant()

	res, err := loadStored(ctx, tx, kind, cmd.Target)
	if err != nil {
		return nil, 0, err
	}

	// A pending transfer whose deadline already passed resolves here before
	// the new request is judged, so the requester sees the projected world.
	materializeTransfer(res, projection.MutationProjectionTime(instant, res))

	if err := checkAuthInfo(res, cmd.AuthInfo, cmd.Superuser); err != nil {
		return nil, 0, err
	}
	if err := checkProhibitions(res, cmd.Superuser,
		model.StatusClientTransferProhibited,
		model.StatusServerTransferProhibited,
		model.StatusPendingDelete,
	); err != nil {
		return nil, 0, err
	}

	life := res.Life()
	outcome, err := transfer.Request(
		*res.Transfer(),
		transfer.Subject{Kind: kind, Name: life.Name},
		life.SponsoringRegistrar,
		cmd.RegistrarID,
		instant,
		f.transferOptions(),
	)
	if err != nil {
		return nil, 0, err
	}
	if err := applyTransferOutcome(ctx, tx, res, outcome, cmd.RegistrarID); err != nil {
		return nil, 0, err
	}

	return transferResult(outcome.Transfer), apperrors.EPPSuccessPending, nil
}

// transferResolve handles approve, reject, and cancel. Legality is judged
// from the STORED transfer status: until one of these flows (or another
// mutating flow) commits, the deadline's automatic approval exists only in
// projections, so an explicit resolution filed late still wins.
func (f *Flows) transferResolve(ctx context.Context, tx storage.Transaction, cmd epp.Command) (any, int, error) {
	kind := kindOf(cmd.Resource)
	instant := tx.Instant()

	res, err := loadStored(ctx, tx, kind, cmd.Target)
	if err != nil {
		return nil, 0, err
	}

	subject := transfer.Subject{Kind: kind, Name: res.Life().Name}
	opts := f.transferOptions()

	var outcome transfer.Outcome
	switch cmd.Op {
	case epp.OpTransferApprove:
		outcome, err = transfer.Approve(*res.Transfer(), subject, cmd.RegistrarID, cmd.Superuser, instant, opts)
	case epp.OpTransferReject:
		outcome, err = transfer.Reject(*res.Transfer(), subject, cmd.RegistrarID, cmd.Superuser, instant, opts)
	case epp.OpTransferCancel:
		outcome, err = transfer.Cancel(*res.Transfer(), subject, cmd.RegistrarID, cmd.Superuser, instant, opts)
	default:
		return nil, 0, apperrors.New(apperrors.CodeCommandUse, "unknown transfer resolution")
	}
	if err != nil {
		return nil, 0, err
	}
	if err := applyTransferOutcome(ctx, tx, res, outcome, cmd.RegistrarID); err != nil {
		return nil, 0, err
	}

	return transferResult(outcome.Transfer), apperrors.EPPSuccess, nil
}

func (f *Flows) transferQuery(ctx context.Context, tx storage.Transaction, cmd epp.Command) (any, int, error) {
	kind := kindOf(cmd.Resource)
	at := tx.Instant()
	if cmd.AsOf != nil {
		at = *cmd.AsOf
	}

	entry, err := tx.ResolveForeignKey(ctx, kind, cmd.Target, at)
	if err != nil {
		return nil, 0, err
	}
	res, err := tx.GetResource(ctx, entry.RepoID)
	if err != nil {
		return nil, 0, err
	}
	projected, err := f.projector(tx).AtTime(ctx, res, at)
	if err != nil {
		return nil, 0, err
	}

	transferData := projected.Transfer()
	if transferData == nil || transferData.Status == model.TransferNone {
		return nil, 0, apperrors.New(apperrors.CodeNoPendingTransfer, "object has no transfer history")
	}

	// Transfer history is disclosed only to the parties involved.
	if !cmd.Superuser &&
		cmd.RegistrarID != transferData.GainingRegistrar &&
		cmd.RegistrarID != transferData.LosingRegistrar &&
		cmd.RegistrarID != projected.Life().SponsoringRegistrar {
		return nil, 0, apperrors.New(apperrors.CodeAuthorization, "registrar is not a party to the transfer")
	}

	return transferResult(*transferData), apperrors.EPPSuccess, nil
}
