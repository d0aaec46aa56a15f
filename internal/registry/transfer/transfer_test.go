package transfer

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/registrolabs/corenic/internal/registry/model"
)

var (
	reqTime = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	subject = Subject{Kind: model.KindDomain, Name: "example.tld"}
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func testOptions() Options {
	return Options{NewID: sequentialIDs()}
}

func pendingTransfer() model.TransferData {
	return model.TransferData{
		Status:                  model.TransferPending,
		GainingRegistrar:        "registrar-b",
		LosingRegistrar:         "registrar-a",
		RequestTime:             reqTime,
		PendingExpirationTime:   reqTime.Add(DefaultWindow),
		ServerApproveEntityKeys: []string{"poll/p2", "poll/p3", "billing/b1"},
	}
}

func TestRequestWritesSpeculativeRecordSet(t *testing.T) {
	outcome, err := Request(model.TransferData{}, subject, "registrar-a", "registrar-b", reqTime, testOptions())
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	deadline := reqTime.Add(DefaultWindow)
	if got := outcome.Transfer.PendingExpirationTime; !got.Equal(deadline) {
		t.Fatalf("deadline = %v, want %v", got, deadline)
	}
	if outcome.Transfer.Status != model.TransferPending {
		t.Fatalf("status = %s, want PENDING", outcome.Transfer.Status)
	}
	if len(outcome.AddStatuses) != 1 || outcome.AddStatuses[0] != model.StatusPendingTransfer {
		t.Fatalf("add statuses = %v", outcome.AddStatuses)
	}

	if len(outcome.PollMessages) != 3 {
		t.Fatalf("poll messages = %d, want 3", len(outcome.PollMessages))
	}
	if outcome.PollMessages[0].RegistrarID != "registrar-a" || !outcome.PollMessages[0].EventTime.Equal(reqTime) {
		t.Fatalf("request notice = %+v, want immediate message to losing registrar", outcome.PollMessages[0])
	}
	for _, msg := range outcome.PollMessages[1:] {
		if !msg.EventTime.Equal(deadline) {
			t.Fatalf("speculative message %s dated %v, want deadline", msg.ID, msg.EventTime)
		}
		if msg.TransferStatus != model.TransferServerApproved {
			t.Fatalf("speculative message status = %s", msg.TransferStatus)
		}
	}

	if len(outcome.BillingEvents) != 1 {
		t.Fatalf("billing events = %d, want 1", len(outcome.BillingEvents))
	}
	fee := outcome.BillingEvents[0]
	if fee.RegistrarID != "registrar-b" || !fee.EventTime.Equal(deadline) || fee.AmountCents != DefaultFeeCents {
		t.Fatalf("fee = %+v", fee)
	}

	// Only the deadline-dated records are speculative; the immediate
	// request notice stays regardless of the outcome.
	if len(outcome.Transfer.ServerApproveEntityKeys) != 3 {
		t.Fatalf("entity keys = %v, want the three deadline records", outcome.Transfer.ServerApproveEntityKeys)
	}
	for _, key := range outcome.Transfer.ServerApproveEntityKeys {
		if key == PollKey(outcome.PollMessages[0].ID) {
			t.Fatal("immediate request notice must not be speculative")
		}
	}
}

func TestRequestWhileAlreadyPending(t *testing.T) {
	_, err := Request(pendingTransfer(), subject, "registrar-a", "registrar-c", reqTime, testOptions())
	if !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("err = %v, want already pending", err)
	}
}

func TestRequestBySponsor(t *testing.T) {
	_, err := Request(model.TransferData{}, subject, "registrar-a", "registrar-a", reqTime, testOptions())
	if !errors.Is(err, ErrAlreadySponsor) {
		t.Fatalf("err = %v, want already sponsor", err)
	}
}

func TestRequestAfterTerminalResolution(t *testing.T) {
	stored := pendingTransfer()
	stored.Status = model.TransferClientRejected
	stored.ServerApproveEntityKeys = nil

	outcome, err := Request(stored, subject, "registrar-a", "registrar-b", reqTime.Add(time.Hour), testOptions())
	if err != nil {
		t.Fatalf("request after rejection: %v", err)
	}
	if outcome.Transfer.Status != model.TransferPending {
		t.Fatalf("status = %s, want new PENDING", outcome.Transfer.Status)
	}
}

func TestApproveMovesSponsorshipAndRetracts(t *testing.T) {
	now := reqTime.Add(24 * time.Hour)
	outcome, err := Approve(pendingTransfer(), subject, "registrar-a", false, now, testOptions())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if outcome.Transfer.Status != model.TransferClientApproved {
		t.Fatalf("status = %s, want CLIENT_APPROVED", outcome.Transfer.Status)
	}
	if outcome.NewSponsor != "registrar-b" {
		t.Fatalf("new sponsor = %s, want gaining registrar", outcome.NewSponsor)
	}
	if len(outcome.Transfer.ServerApproveEntityKeys) != 0 {
		t.Fatal("resolved transfer must not keep speculative keys")
	}
	if len(outcome.RetractKeys) != 3 {
		t.Fatalf("retract keys = %v, want all three speculative records", outcome.RetractKeys)
	}

	// Replacement records are dated at the actual resolution instant.
	if len(outcome.PollMessages) != 1 || !outcome.PollMessages[0].EventTime.Equal(now) {
		t.Fatalf("replacement poll = %+v", outcome.PollMessages)
	}
	if len(outcome.BillingEvents) != 1 || !outcome.BillingEvents[0].EventTime.Equal(now) {
		t.Fatalf("replacement fee = %+v", outcome.BillingEvents)
	}
}

func TestRejectAfterDeadlineStillWins(t *testing.T) {
	// The stored status is still PENDING even though the deadline passed:
	// no mutating flow has observed the automatic approval, so an explicit
	// rejection remains legal and voids it.
	late := reqTime.Add(DefaultWindow + 48*time.Hour)
	outcome, err := Reject(pendingTransfer(), subject, "registrar-a", false, late, testOptions())
	if err != nil {
		t.Fatalf("late reject: %v", err)
	}
	if outcome.Transfer.Status != model.TransferClientRejected {
		t.Fatalf("status = %s, want CLIENT_REJECTED", outcome.Transfer.Status)
	}
	if outcome.NewSponsor != "" {
		t.Fatal("rejection must not move sponsorship")
	}
	if len(outcome.RetractKeys) != 3 {
		t.Fatalf("retract keys = %v, want all speculative records", outcome.RetractKeys)
	}
	if len(outcome.BillingEvents) != 0 {
		t.Fatal("rejection must not charge the gaining registrar")
	}
}

func TestResolveRoleChecks(t *testing.T) {
	stored := pendingTransfer()
	now := reqTime.Add(time.Hour)
	opts := testOptions()

	if _, err := Approve(stored, subject, "registrar-b", false, now, opts); !errors.Is(err, ErrNotLosingRegistrar) {
		t.Fatalf("approve by gaining err = %v", err)
	}
	if _, err := Reject(stored, subject, "registrar-c", false, now, opts); !errors.Is(err, ErrNotLosingRegistrar) {
		t.Fatalf("reject by stranger err = %v", err)
	}
	if _, err := Cancel(stored, subject, "registrar-a", false, now, opts); !errors.Is(err, ErrNotGainingRegistrar) {
		t.Fatalf("cancel by losing err = %v", err)
	}

	// Superuser overrides the role requirement but not the pending check.
	if _, err := Approve(stored, subject, "registrar-c", true, now, opts); err != nil {
		t.Fatalf("superuser approve err = %v", err)
	}
	resolved := stored
	resolved.Status = model.TransferClientApproved
	if _, err := Approve(resolved, subject, "registrar-c", true, now, opts); !errors.Is(err, ErrNotPending) {
		t.Fatalf("superuser approve of resolved err = %v", err)
	}
}

func TestResolveWithoutPendingTransfer(t *testing.T) {
	now := reqTime.Add(time.Hour)
	opts := testOptions()
	for name, fn := range map[string]func() (Outcome, error){
		"approve": func() (Outcome, error) {
			return Approve(model.TransferData{}, subject, "registrar-a", false, now, opts)
		},
		"reject": func() (Outcome, error) {
			return Reject(model.TransferData{}, subject, "registrar-a", false, now, opts)
		},
		"cancel": func() (Outcome, error) {
			return Cancel(model.TransferData{}, subject, "registrar-b", false, now, opts)
		},
		"server-cancel": func() (Outcome, error) {
			return ServerCancel(model.TransferData{}, subject, now, opts)
		},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := fn(); !errors.Is(err, ErrNotPending) {
				t.Fatalf("err = %v, want not pending", err)
			}
		})
	}
}

func TestCancelNotifiesLosingRegistrar(t *testing.T) {
	now := reqTime.Add(2 * time.Hour)
	outcome, err := Cancel(pendingTransfer(), subject, "registrar-b", false, now, testOptions())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if outcome.Transfer.Status != model.TransferClientCancelled {
		t.Fatalf("status = %s, want CLIENT_CANCELLED", outcome.Transfer.Status)
	}
	if len(outcome.PollMessages) != 1 || outcome.PollMessages[0].RegistrarID != "registrar-a" {
		t.Fatalf("notification = %+v, want message to losing registrar", outcome.PollMessages)
	}
}

func TestServerCancelNotifiesGainingRegistrar(t *testing.T) {
	now := reqTime.Add(2 * time.Hour)
	outcome, err := ServerCancel(pendingTransfer(), subject, now, testOptions())
	if err != nil {
		t.Fatalf("server cancel: %v", err)
	}
	if outcome.Transfer.Status != model.TransferServerCancelled {
		t.Fatalf("status = %s, want SERVER_CANCELLED", outcome.Transfer.Status)
	}
	if len(outcome.PollMessages) != 1 || outcome.PollMessages[0].RegistrarID != "registrar-b" {
		t.Fatalf("notification = %+v, want message to gaining registrar", outcome.PollMessages)
	}
}

func TestSplitEntityKey(t *testing.T) {
	recordID, isPoll, err := SplitEntityKey(PollKey("p-1"))
	if err != nil || !isPoll || recordID != "p-1" {
		t.Fatalf("poll key split = (%s, %v, %v)", recordID, isPoll, err)
	}
	recordID, isPoll, err = SplitEntityKey(BillingKey("b-1"))
	if err != nil || isPoll || recordID != "b-1" {
		t.Fatalf("billing key split = (%s, %v, %v)", recordID, isPoll, err)
	}
	if _, _, err := SplitEntityKey("bogus"); err == nil {
		t.Fatal("malformed key must error")
	}
}
