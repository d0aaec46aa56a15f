package flows

import (
	"context"
	"strings"

	"github.com/registrolabs/corenic/internal/epp"
	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/registry/model"
	"github.com/registrolabs/corenic/internal/registry/projection"
	"github.com/registrolabs/corenic/internal/registry/storage"
	"github.com/registrolabs/corenic/internal/registry/transfer"
)

func (f *Flows) create(ctx context.Context, tx storage.Transaction, cmd epp.Command) (any, int, error) {
	kind := kindOf(cmd.Resource)
	instant := tx.Instant()

	if _, err := tx.ResolveForeignKey(ctx, kind, cmd.Target, instant); err == nil {
		return nil, 0, apperrors.New(apperrors.CodeAlreadyExists, "object exists")
	} else if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, 0, err
	}

	res, err := f.buildResource(kind, cmd)
	if err != nil {
		return nil, 0, err
	}
	life := res.Life()
	life.CreationTime = instant
	life.DeletionTime = model.EndOfTime

	if err := tx.PutResource(ctx, res); err != nil {
		return nil, 0, err
	}
	if err := tx.PublishForeignKey(ctx, storage.ForeignKeyEntry{
		Kind:       kind,
		Name:       cmd.Target,
		RepoID:     life.RepoID,
		ValidUntil: model.EndOfTime,
	}); err != nil {
		return nil, 0, err
	}

	if domain, ok := res.(*model.Domain); ok {
		contactIDs := append([]string{domain.Registrant}, domain.ContactIDs...)
		if err := tx.SetDomainReferences(ctx, life.RepoID, contactIDs, domain.HostNames); err != nil {
			return nil, 0, err
		}
	}

	return CreateResult{
		Name:         life.Name,
		RepoID:       life.RepoID,
		CreationTime: life.CreationTime,
	}, apperrors.EPPSuccess, nil
}

func (f *Flows) buildResource(kind model.Kind, cmd epp.Command) (model.Resource, error) {
	create := cmd.Create
	if create == nil {
		create = &epp.CreateData{}
	}

	life := model.Lifecycle{
		RepoID:              f.newRepoID(),
		Name:                cmd.Target,
		SponsoringRegistrar: cmd.RegistrarID,
		CreatingRegistrar:   cmd.RegistrarID,
		Statuses:            model.NewStatusSet(),
	}

	switch kind {
	case model.KindDomain:
		if strings.TrimSpace(create.Registrant) == "" {
			return nil, apperrors.New(apperrors.CodeCommandUse, "domain create requires a registrant")
		}
		return &model.Domain{
			Lifecycle:  life,
			Registrant: create.Registrant,
			ContactIDs: append([]string(nil), create.ContactIDs...),
			HostNames:  append([]string(nil), create.HostNames...),
			AuthInfo:   create.AuthInfo,
		}, nil
	case model.KindContact:
		return &model.Contact{
			Lifecycle: life,
			AuthInfo:  create.AuthInfo,
		}, nil
	case model.KindHost:
		return &model.Host{
			Lifecycle: life,
			Addresses: append([]string(nil), create.Addresses...),
		}, nil
	}
	return nil, apperrors.New(apperrors.CodeCommandUse, "unknown resource type")
}

func (f *Flows) info(ctx context.Context, tx storage.Transaction, cmd epp.Command) (any, int, error) {
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

	discloseAuth := cmd.Superuser || projected.Life().SponsoringRegistrar == cmd.RegistrarID
	return infoResult(projected, discloseAuth), apperrors.EPPSuccess, nil
}

func (f *Flows) delete(ctx context.Context, tx storage.Transaction, cmd epp.Command) (any, int, error) {
	kind := kindOf(cmd.Resource)
	instant := tx.Instant()

	res, err := loadStored(ctx, tx, kind, cmd.Target)
	if err != nil {
		return nil, 0, err
	}
	materializeTransfer(res, projection.MutationProjectionTime(instant, res))
	if err := checkSponsor(res, cmd.RegistrarID, cmd.Superuser); err != nil {
		return nil, 0, err
	}
	if err := checkProhibitions(res, cmd.Superuser,
		model.StatusClientDeleteProhibited,
		model.StatusServerDeleteProhibited,
		model.StatusPendingDelete,
	); err != nil {
		return nil, 0, err
	}

	// Contacts and hosts stay put while any domain references them. The
	// check runs in the same transaction as the delete, so a concurrent
	// domain create on this entity group cannot slip past it.
	if kind == model.KindContact || kind == model.KindHost {
		count, err := tx.CountReferences(ctx, kind, cmd.Target)
		if err != nil {
			return nil, 0, err
		}
		if count > 0 {
			return nil, 0, apperrors.WithMetadata(
				apperrors.CodeStatusProhibitsOperation,
				"object is referenced by a domain",
				map[string]string{"references": cmd.Target},
			)
		}
	}

	life := res.Life()

	// An open transfer is voided by the registry before the object goes
	// away, retracting its speculative deadline records.
	if transferData := res.Transfer(); transferData != nil && transferData.Status == model.TransferPending {
		outcome, err := transfer.ServerCancel(*transferData, transfer.Subject{Kind: kind, Name: life.Name}, instant, f.transferOptions())
		if err != nil {
			return nil, 0, err
		}
		if err := applyTransferOutcome(ctx, tx, res, outcome, cmd.RegistrarID); err != nil {
			return nil, 0, err
		}
	}

	life.DeletionTime = instant
	life.LastUpdatingRegistrar = cmd.RegistrarID
	if err := tx.PutResource(ctx, res); err != nil {
		return nil, 0, err
	}
	if err := tx.RetireForeignKey(ctx, kind, life.Name, instant); err != nil {
		return nil, 0, err
	}
	if kind == model.KindDomain {
		if err := tx.ClearDomainReferences(ctx, life.RepoID); err != nil {
			return nil, 0, err
		}
	}
	return nil, apperrors.EPPSuccess, nil
}

func (f *Flows) update(ctx context.Context, tx storage.Transaction, cmd epp.Command) (any, int, error) {
	if cmd.Resource != epp.ResourceHost {
		return nil, 0, apperrors.New(apperrors.CodeCommandUse, "update supports host renames only")
	}
	if cmd.Update == nil || strings.TrimSpace(cmd.Update.NewName) == "" {
		return nil, 0, apperrors.New(apperrors.CodeCommandUse, "host update requires a new name")
	}
	newName := cmd.Update.NewName
	instant := tx.Instant()

	res, err := loadStored(ctx, tx, model.KindHost, cmd.Target)
	if err != nil {
		return nil, 0, err
	}
	if err := checkSponsor(res, cmd.RegistrarID, cmd.Superuser); err != nil {
		return nil, 0, err
	}
	if err := checkProhibitions(res, cmd.Superuser,
		model.StatusClientUpdateProhibited,
		model.StatusServerUpdateProhibited,
		model.StatusPendingDelete,
	); err != nil {
		return nil, 0, err
	}

	if _, err := tx.ResolveForeignKey(ctx, model.KindHost, newName, instant); err == nil {
		return nil, 0, apperrors.New(apperrors.CodeAlreadyExists, "object exists")
	} else if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, 0, err
	}

	// The old index entry's window closes at the rename instant; the host
	// itself keeps one continuous lifetime under its repository id.
	life := res.Life()
	if err := tx.RetireForeignKey(ctx, model.KindHost, life.Name, instant); err != nil {
		return nil, 0, err
	}
	if err := tx.PublishForeignKey(ctx, storage.ForeignKeyEntry{
		Kind:       model.KindHost,
		Name:       newName,
		RepoID:     life.RepoID,
		ValidUntil: model.EndOfTime,
	}); err != nil {
		return nil, 0, err
	}

	life.Name = newName
	life.LastUpdatingRegistrar = cmd.RegistrarID
	if err := tx.PutResource(ctx, res); err != nil {
		return nil, 0, err
	}
	return nil, apperrors.EPPSuccess, nil
}
