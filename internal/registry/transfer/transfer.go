// Package transfer implements the registrar-to-registrar transfer state
// machine as pure functions over stored transfer state.
//
// Requesting a transfer writes every side effect of automatic approval up
// front, dated at the deadline; resolving it before the deadline retracts
// those speculative records and writes replacements dated at the actual
// resolution instant. Legality of a resolution is always judged from the
// STORED status, never the projected one, so an explicit rejection or
// cancellation filed after the deadline still wins over the implicit
// automatic approval nobody has observed in a mutating flow yet.
package transfer

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/platform/id"
	"github.com/registrolabs/corenic/internal/registry/model"
)

// DefaultWindow is the automatic-approval window of a requested transfer.
const DefaultWindow = 5 * 24 * time.Hour

// DefaultFeeCents is the flat transfer fee charged to the gaining registrar.
const DefaultFeeCents int64 = 1100

var (
	// ErrAlreadyPending rejects a second transfer request while one is open.
	ErrAlreadyPending = apperrors.New(apperrors.CodeAlreadyPendingTransfer, "transfer already pending")
	// ErrNotPending rejects resolution of a transfer that is not open.
	ErrNotPending = apperrors.New(apperrors.CodeNoPendingTransfer, "no pending transfer to resolve")
	// ErrAlreadySponsor rejects a transfer request from the current sponsor.
	ErrAlreadySponsor = apperrors.New(apperrors.CodeCommandUse, "registrar already sponsors the object")
	// ErrNotLosingRegistrar rejects approve/reject by anyone but the losing
	// registrar.
	ErrNotLosingRegistrar = apperrors.New(apperrors.CodeAuthorization, "only the losing registrar may resolve the transfer")
	// ErrNotGainingRegistrar rejects cancellation by anyone but the gaining
	// registrar.
	ErrNotGainingRegistrar = apperrors.New(apperrors.CodeAuthorization, "only the gaining registrar may cancel the transfer")
)

// Entity key prefixes route speculative-record retraction to the right store.
const (
	pollKeyPrefix    = "poll/"
	billingKeyPrefix = "billing/"
)

// PollKey builds an entity key referencing a poll message.
func PollKey(id string) string { return pollKeyPrefix + id }

// BillingKey builds an entity key referencing a billing event.
func BillingKey(id string) string { return billingKeyPrefix + id }

// SplitEntityKey splits an entity key into its record id and whether it
// addresses a poll message (true) or a billing event (false).
func SplitEntityKey(key string) (recordID string, isPoll bool, err error) {
	switch {
	case strings.HasPrefix(key, pollKeyPrefix):
		return strings.TrimPrefix(key, pollKeyPrefix), true, nil
	case strings.HasPrefix(key, billingKeyPrefix):
		return strings.TrimPrefix(key, billingKeyPrefix), false, nil
	default:
		return "", false, fmt.Errorf("malformed entity key %q", key)
	}
}

// Options tunes transfer processing. The zero value uses defaults.
type Options struct {
	// Window overrides the automatic-approval window.
	Window time.Duration
	// FeeCents overrides the transfer fee.
	FeeCents int64
	// NewID overrides record id minting, for deterministic tests.
	NewID func() string
}

func (o Options) window() time.Duration {
	if o.Window > 0 {
		return o.Window
	}
	return DefaultWindow
}

func (o Options) feeCents() int64 {
	if o.FeeCents > 0 {
		return o.FeeCents
	}
	return DefaultFeeCents
}

func (o Options) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return id.MustNewID()
}

// Outcome describes everything a transfer transition changes. The caller
// applies it inside the owning transaction.
type Outcome struct {
	// Transfer is the resource's new stored transfer state.
	Transfer model.TransferData
	// NewSponsor is the new sponsoring registrar, empty when sponsorship
	// does not change at this transition.
	NewSponsor string
	// AddStatuses and RemoveStatuses adjust the resource's status set.
	AddStatuses    []model.Status
	RemoveStatuses []model.Status
	// PollMessages and BillingEvents are new records to persist.
	PollMessages  []model.PollMessage
	BillingEvents []model.BillingEvent
	// RetractKeys references speculative records to delete.
	RetractKeys []string
}

// Subject identifies the resource a transition operates on.
type Subject struct {
	Kind model.Kind
	Name string
}

// Request opens a pending transfer of subject from the current sponsor to
// gaining, writing the full speculative record set of automatic approval.
func Request(stored model.TransferData, subject Subject, sponsor, gaining string, now time.Time, opts Options) (Outcome, error) {
	if stored.Status == model.TransferPending {
		return Outcome{}, ErrAlreadyPending
	}
	if gaining == sponsor {
		return Outcome{}, ErrAlreadySponsor
	}

	deadline := now.Add(opts.window())

	// Visible immediately: the losing registrar learns a request is open.
	requested := model.PollMessage{
		ID:             opts.newID(),
		RegistrarID:    sponsor,
		EventTime:      now,
		Type:           model.PollTransferRequested,
		Message:        fmt.Sprintf("Transfer of %s requested by %s", subject.Name, gaining),
		ResourceKind:   subject.Kind,
		ResourceName:   subject.Name,
		TransferStatus: model.TransferPending,
	}

	// Speculative, dated at the deadline: the side effects of automatic
	// approval, visible only once the deadline passes unresolved.
	approvedGaining := model.PollMessage{
		ID:             opts.newID(),
		RegistrarID:    gaining,
		EventTime:      deadline,
		Type:           model.PollTransferResolved,
		Message:        fmt.Sprintf("Transfer of %s approved automatically", subject.Name),
		ResourceKind:   subject.Kind,
		ResourceName:   subject.Name,
		TransferStatus: model.TransferServerApproved,
	}
	approvedLosing := model.PollMessage{
		ID:             opts.newID(),
		RegistrarID:    sponsor,
		EventTime:      deadline,
		Type:           model.PollTransferResolved,
		Message:        fmt.Sprintf("Transfer of %s approved automatically", subject.Name),
		ResourceKind:   subject.Kind,
		ResourceName:   subject.Name,
		TransferStatus: model.TransferServerApproved,
	}
	fee := model.BillingEvent{
		ID:           opts.newID(),
		RegistrarID:  gaining,
		EventTime:    deadline,
		Type:         model.BillingTransferFee,
		AmountCents:  opts.feeCents(),
		Description:  fmt.Sprintf("Transfer fee for %s", subject.Name),
		ResourceKind: subject.Kind,
		ResourceName: subject.Name,
	}

	return Outcome{
		Transfer: model.TransferData{
			Status:                model.TransferPending,
			GainingRegistrar:      gaining,
			LosingRegistrar:       sponsor,
			RequestTime:           now,
			PendingExpirationTime: deadline,
			ServerApproveEntityKeys: []string{
				PollKey(approvedGaining.ID),
				PollKey(approvedLosing.ID),
				BillingKey(fee.ID),
			},
		},
		AddStatuses:   []model.Status{model.StatusPendingTransfer},
		PollMessages:  []model.PollMessage{requested, approvedGaining, approvedLosing},
		BillingEvents: []model.BillingEvent{fee},
	}, nil
}

// Approve resolves a stored-pending transfer as approved by the losing
// registrar. Sponsorship moves to the gaining registrar immediately, the
// speculative deadline records are retracted, and replacements dated at the
// actual resolution instant are written.
func Approve(stored model.TransferData, subject Subject, acting string, superuser bool, now time.Time, opts Options) (Outcome, error) {
	if err := checkResolvable(stored, acting, superuser, stored.LosingRegistrar, ErrNotLosingRegistrar); err != nil {
		return Outcome{}, err
	}

	resolved := stored.Clone()
	resolved.Status = model.TransferClientApproved
	resolved.ServerApproveEntityKeys = nil

	return Outcome{
		Transfer:       resolved,
		NewSponsor:     stored.GainingRegistrar,
		RemoveStatuses: []model.Status{model.StatusPendingTransfer},
		RetractKeys:    append([]string(nil), stored.ServerApproveEntityKeys...),
		PollMessages: []model.PollMessage{{
			ID:             opts.newID(),
			RegistrarID:    stored.GainingRegistrar,
			EventTime:      now,
			Type:           model.PollTransferResolved,
			Message:        fmt.Sprintf("Transfer of %s approved by %s", subject.Name, stored.LosingRegistrar),
			ResourceKind:   subject.Kind,
			ResourceName:   subject.Name,
			TransferStatus: model.TransferClientApproved,
		}},
		BillingEvents: []model.BillingEvent{{
			ID:           opts.newID(),
			RegistrarID:  stored.GainingRegistrar,
			EventTime:    now,
			Type:         model.BillingTransferFee,
			AmountCents:  opts.feeCents(),
			Description:  fmt.Sprintf("Transfer fee for %s", subject.Name),
			ResourceKind: subject.Kind,
			ResourceName: subject.Name,
		}},
	}, nil
}

// Reject resolves a stored-pending transfer as rejected by the losing
// registrar. Because legality is judged from stored state, a rejection
// filed after the deadline still voids the unobserved automatic approval.
func Reject(stored model.TransferData, subject Subject, acting string, superuser bool, now time.Time, opts Options) (Outcome, error) {
	if err := checkResolvable(stored, acting, superuser, stored.LosingRegistrar, ErrNotLosingRegistrar); err != nil {
		return Outcome{}, err
	}
	return voided(stored, subject, model.TransferClientRejected, stored.GainingRegistrar,
		fmt.Sprintf("Transfer of %s rejected by %s", subject.Name, stored.LosingRegistrar), now, opts), nil
}

// Cancel withdraws a stored-pending transfer at the gaining registrar's
// request.
func Cancel(stored model.TransferData, subject Subject, acting string, superuser bool, now time.Time, opts Options) (Outcome, error) {
	if err := checkResolvable(stored, acting, superuser, stored.GainingRegistrar, ErrNotGainingRegistrar); err != nil {
		return Outcome{}, err
	}
	return voided(stored, subject, model.TransferClientCancelled, stored.LosingRegistrar,
		fmt.Sprintf("Transfer of %s cancelled by %s", subject.Name, stored.GainingRegistrar), now, opts), nil
}

// ServerCancel voids a stored-pending transfer by registry action, used when
// a resource with an open transfer is deleted.
func ServerCancel(stored model.TransferData, subject Subject, now time.Time, opts Options) (Outcome, error) {
	if stored.Status != model.TransferPending {
		return Outcome{}, ErrNotPending
	}
	return voided(stored, subject, model.TransferServerCancelled, stored.GainingRegistrar,
		fmt.Sprintf("Transfer of %s cancelled by the registry", subject.Name), now, opts), nil
}

// checkResolvable verifies a resolution against STORED state: the transfer
// must still be stored as pending, and the acting registrar must hold the
// required role unless acting as superuser.
func checkResolvable(stored model.TransferData, acting string, superuser bool, required string, roleErr *apperrors.Error) error {
	if stored.Status != model.TransferPending {
		return ErrNotPending
	}
	if !superuser && acting != required {
		return roleErr
	}
	return nil
}

// voided builds the shared outcome of reject, cancel, and server-cancel:
// terminal status, speculative records retracted, no sponsorship change,
// and one notification to the counterparty dated at the resolution instant.
func voided(stored model.TransferData, subject Subject, status model.TransferStatus, notify, message string, now time.Time, opts Options) Outcome {
	resolved := stored.Clone()
	resolved.Status = status
	resolved.ServerApproveEntityKeys = nil

	return Outcome{
		Transfer:       resolved,
		RemoveStatuses: []model.Status{model.StatusPendingTransfer},
		RetractKeys:    append([]string(nil), stored.ServerApproveEntityKeys...),
		PollMessages: []model.PollMessage{{
			ID:             opts.newID(),
			RegistrarID:    notify,
			EventTime:      now,
			Type:           model.PollTransferResolved,
			Message:        message,
			ResourceKind:   subject.Kind,
			ResourceName:   subject.Name,
			TransferStatus: status,
		}},
	}
}
