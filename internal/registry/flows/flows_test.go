package flows

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/registrolabs/corenic/internal/epp"
	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/registry/model"
	"github.com/registrolabs/corenic/internal/registry/storage"
	"github.com/registrolabs/corenic/internal/registry/storage/sqlite"
	"github.com/registrolabs/corenic/internal/registry/transfer"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	store  *sqlite.Store
	engine *Engine
	flows  *Flows
	clock  *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "registry.sqlite"), sqlite.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	n := 0
	return &testEnv{
		store:  store,
		engine: &Engine{Store: store, Logger: log.New(testWriter{t}, "", 0)},
		flows: &Flows{
			Logger: log.New(testWriter{t}, "", 0),
			NewID: func() string {
				n++
				return fmt.Sprintf("record-%d", n)
			},
		},
		clock: clock,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (e *testEnv) run(t *testing.T, cmd epp.Command) (Result, error) {
	t.Helper()
	fn, err := e.flows.ForCommand(cmd)
	if err != nil {
		t.Fatalf("route command: %v", err)
	}
	mode := ModeLive
	if cmd.DryRun {
		mode = ModeDryRun
	}
	return e.engine.Run(context.Background(), mode, fn)
}

func (e *testEnv) mustRun(t *testing.T, cmd epp.Command) Result {
	t.Helper()
	result, err := e.run(t, cmd)
	if err != nil {
		t.Fatalf("%s %s %s: %v", cmd.Op, cmd.Resource, cmd.Target, err)
	}
	return result
}

func createDomain(t *testing.T, e *testEnv, name, registrar string) {
	t.Helper()
	e.mustRun(t, epp.Command{
		Op:          epp.OpCreate,
		Resource:    epp.ResourceContact,
		Target:      "contact-" + registrar,
		RegistrarID: registrar,
		Create:      &epp.CreateData{AuthInfo: "contact-secret"},
	})
	e.mustRun(t, epp.Command{
		Op:          epp.OpCreate,
		Resource:    epp.ResourceDomain,
		Target:      name,
		RegistrarID: registrar,
		Create: &epp.CreateData{
			Registrant: "contact-" + registrar,
			AuthInfo:   "secret",
		},
	})
}

func TestCreateAndInfo(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")

	result := e.mustRun(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	})
	if result.Code != apperrors.EPPSuccess {
		t.Fatalf("info code = %d", result.Code)
	}
	info, ok := result.ResData.(InfoResult)
	if !ok {
		t.Fatalf("res data type = %T", result.ResData)
	}
	if info.SponsoringRegistrar != "registrar-a" || info.Name != "example.tld" {
		t.Fatalf("info = %+v", info)
	}
	if info.AuthInfo != "secret" {
		t.Fatal("sponsor must see auth info")
	}
	if len(info.Statuses) != 1 || info.Statuses[0] != model.StatusOK {
		t.Fatalf("statuses = %v, want implicit ok", info.Statuses)
	}

	// A stranger gets the same view minus the authorization material.
	result = e.mustRun(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-z",
	})
	if result.ResData.(InfoResult).AuthInfo != "" {
		t.Fatal("non-sponsor must not see auth info")
	}
}

func TestCreateDuplicateName(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")

	result, err := e.run(t, epp.Command{
		Op:          epp.OpCreate,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-b",
		Create:      &epp.CreateData{Registrant: "contact-registrar-a"},
	})
	if err == nil || result.Code != apperrors.EPPObjectExists {
		t.Fatalf("duplicate create = (%+v, %v), want 2302", result, err)
	}
}

func TestInfoOfAbsentObject(t *testing.T) {
	e := newTestEnv(t)
	result, err := e.run(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceDomain,
		Target:      "missing.tld",
		RegistrarID: "registrar-a",
	})
	if err == nil || result.Code != apperrors.EPPObjectDoesNotExist {
		t.Fatalf("absent info = (%+v, %v), want 2303", result, err)
	}
}

func TestDryRunDiscardsButPredicts(t *testing.T) {
	e := newTestEnv(t)

	dry := e.mustRun(t, epp.Command{
		Op:          epp.OpCreate,
		Resource:    epp.ResourceContact,
		Target:      "contact-1",
		RegistrarID: "registrar-a",
		DryRun:      true,
	})
	if dry.Code != apperrors.EPPSuccess || dry.Committed {
		t.Fatalf("dry run = %+v, want uncommitted success", dry)
	}

	// Nothing persisted: the identical live command succeeds with the same
	// result code instead of colliding.
	live := e.mustRun(t, epp.Command{
		Op:          epp.OpCreate,
		Resource:    epp.ResourceContact,
		Target:      "contact-1",
		RegistrarID: "registrar-a",
	})
	if live.Code != dry.Code {
		t.Fatalf("live code %d != dry-run code %d", live.Code, dry.Code)
	}
	if !live.Committed {
		t.Fatal("live run must commit")
	}
}

func TestDeleteBlockedByReference(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")

	result, err := e.run(t, epp.Command{
		Op:          epp.OpDelete,
		Resource:    epp.ResourceContact,
		Target:      "contact-registrar-a",
		RegistrarID: "registrar-a",
	})
	if err == nil || result.Code != apperrors.EPPStatusProhibitsOperation {
		t.Fatalf("referenced delete = (%+v, %v), want 2304", result, err)
	}

	// Deleting the referencing domain releases the contact.
	e.mustRun(t, epp.Command{
		Op:          epp.OpDelete,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	})
	e.mustRun(t, epp.Command{
		Op:          epp.OpDelete,
		Resource:    epp.ResourceContact,
		Target:      "contact-registrar-a",
		RegistrarID: "registrar-a",
	})
}

func TestDeleteFreesNameForRecreation(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")

	e.mustRun(t, epp.Command{
		Op:          epp.OpDelete,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	})

	if _, err := e.run(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	}); err == nil {
		t.Fatal("deleted domain must not resolve")
	}

	e.clock.Advance(time.Hour)
	e.mustRun(t, epp.Command{
		Op:          epp.OpCreate,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-b",
		Create:      &epp.CreateData{Registrant: "contact-registrar-a"},
	})

	result := e.mustRun(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-b",
	})
	if result.ResData.(InfoResult).SponsoringRegistrar != "registrar-b" {
		t.Fatal("recreated name must resolve to the new resource")
	}
}

func TestDeleteRequiresSponsor(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")

	result, err := e.run(t, epp.Command{
		Op:          epp.OpDelete,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-b",
	})
	if err == nil || result.Code != apperrors.EPPAuthorizationError {
		t.Fatalf("non-sponsor delete = (%+v, %v), want 2201", result, err)
	}
}

func TestHostRenameRepublishesIndex(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, epp.Command{
		Op:          epp.OpCreate,
		Resource:    epp.ResourceHost,
		Target:      "ns1.example.tld",
		RegistrarID: "registrar-a",
		Create:      &epp.CreateData{Addresses: []string{"192.0.2.1"}},
	})

	e.clock.Advance(time.Hour)
	e.mustRun(t, epp.Command{
		Op:          epp.OpUpdate,
		Resource:    epp.ResourceHost,
		Target:      "ns1.example.tld",
		RegistrarID: "registrar-a",
		Update:      &epp.UpdateData{NewName: "ns2.example.tld"},
	})

	if _, err := e.run(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceHost,
		Target:      "ns1.example.tld",
		RegistrarID: "registrar-a",
	}); err == nil {
		t.Fatal("old host name must not resolve after rename")
	}

	result := e.mustRun(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceHost,
		Target:      "ns2.example.tld",
		RegistrarID: "registrar-a",
	})
	info := result.ResData.(InfoResult)
	if info.Name != "ns2.example.tld" || len(info.Addresses) != 1 {
		t.Fatalf("renamed host info = %+v", info)
	}

	// The old entry's validity window still covers the pre-rename past.
	asOf := e.clock.now.Add(-30 * time.Minute)
	result = e.mustRun(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceHost,
		Target:      "ns1.example.tld",
		RegistrarID: "registrar-a",
		AsOf:        &asOf,
	})
	if result.ResData.(InfoResult).RepoID != info.RepoID {
		t.Fatal("historical resolve must reach the same resource")
	}
}

func requestTransfer(t *testing.T, e *testEnv, target string) {
	t.Helper()
	result := e.mustRun(t, epp.Command{
		Op:          epp.OpTransferRequest,
		Resource:    epp.ResourceDomain,
		Target:      target,
		RegistrarID: "registrar-b",
		AuthInfo:    "secret",
	})
	if result.Code != apperrors.EPPSuccessPending {
		t.Fatalf("transfer request code = %d, want 1001", result.Code)
	}
}

func TestTransferAutoApprovalProjection(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")
	requestTransfer(t, e, "example.tld")

	// Scenario A: nobody acts; the deadline passes; reads see the gaining
	// registrar as sponsor with no intervening write.
	info := func() InfoResult {
		result := e.mustRun(t, epp.Command{
			Op:          epp.OpInfo,
			Resource:    epp.ResourceDomain,
			Target:      "example.tld",
			RegistrarID: "registrar-a",
		})
		return result.ResData.(InfoResult)
	}

	before := info()
	if before.SponsoringRegistrar != "registrar-a" || before.Transfer.Status != "PENDING" {
		t.Fatalf("before deadline = %+v", before)
	}

	e.clock.Advance(transfer.DefaultWindow + time.Hour)
	after := info()
	if after.SponsoringRegistrar != "registrar-b" {
		t.Fatalf("sponsor after deadline = %s, want gaining registrar", after.SponsoringRegistrar)
	}
	if after.Transfer.Status != "SERVER_APPROVED" {
		t.Fatalf("transfer status = %s, want SERVER_APPROVED", after.Transfer.Status)
	}
}

func TestTransferApproveBeforeDeadline(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")
	requestTransfer(t, e, "example.tld")

	e.clock.Advance(24 * time.Hour)
	result := e.mustRun(t, epp.Command{
		Op:          epp.OpTransferApprove,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	})
	if result.ResData.(*TransferResult).Status != "CLIENT_APPROVED" {
		t.Fatalf("approve result = %+v", result.ResData)
	}

	info := e.mustRun(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-b",
	}).ResData.(InfoResult)
	if info.SponsoringRegistrar != "registrar-b" {
		t.Fatal("approval must move sponsorship immediately")
	}
}

func TestRejectBeforeDeadlineStaysRejected(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")
	requestTransfer(t, e, "example.tld")

	// Scenario B: rejected two days in; the deadline later passing changes
	// nothing, because projection only rewrites PENDING transfers.
	e.clock.Advance(48 * time.Hour)
	e.mustRun(t, epp.Command{
		Op:          epp.OpTransferReject,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	})

	check := func() {
		t.Helper()
		info := e.mustRun(t, epp.Command{
			Op:          epp.OpInfo,
			Resource:    epp.ResourceDomain,
			Target:      "example.tld",
			RegistrarID: "registrar-a",
		}).ResData.(InfoResult)
		if info.SponsoringRegistrar != "registrar-a" || info.Transfer.Status != "CLIENT_REJECTED" {
			t.Fatalf("info = sponsor %s, transfer %s", info.SponsoringRegistrar, info.Transfer.Status)
		}
	}
	check()

	e.clock.Advance(transfer.DefaultWindow)
	check()
}

func TestLateRejectOverturnsExpiredDeadline(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")
	requestTransfer(t, e, "example.tld")

	// Scenario B: the deadline passes unobserved, then the losing registrar
	// rejects. Stored status is still PENDING, so the rejection is legal
	// and the automatic approval never becomes real.
	e.clock.Advance(transfer.DefaultWindow + 48*time.Hour)
	result := e.mustRun(t, epp.Command{
		Op:          epp.OpTransferReject,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	})
	if result.ResData.(*TransferResult).Status != "CLIENT_REJECTED" {
		t.Fatalf("late reject result = %+v", result.ResData)
	}

	info := e.mustRun(t, epp.Command{
		Op:          epp.OpInfo,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	}).ResData.(InfoResult)
	if info.SponsoringRegistrar != "registrar-a" {
		t.Fatalf("sponsor = %s, rejection must keep the losing registrar", info.SponsoringRegistrar)
	}
	if info.Transfer.Status != "CLIENT_REJECTED" {
		t.Fatalf("transfer status = %s", info.Transfer.Status)
	}
}

func TestTransferRequestWithBadAuthInfo(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")

	result, err := e.run(t, epp.Command{
		Op:          epp.OpTransferRequest,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-b",
		AuthInfo:    "wrong",
	})
	if err == nil || result.Code != apperrors.EPPAuthorizationError {
		t.Fatalf("bad auth request = (%+v, %v), want 2201", result, err)
	}
}

func TestTransferRequestWhilePending(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")
	requestTransfer(t, e, "example.tld")

	result, err := e.run(t, epp.Command{
		Op:          epp.OpTransferRequest,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-c",
		AuthInfo:    "secret",
	})
	if err == nil || result.Code != apperrors.EPPObjectPendingTransfer {
		t.Fatalf("second request = (%+v, %v), want 2300", result, err)
	}
}

func TestTransferRequestAfterExpiredPendingSucceeds(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")
	requestTransfer(t, e, "example.tld")

	// Past the deadline the old transfer materializes as approved inside
	// the new request's transaction, so a fresh request against the new
	// sponsor is legal.
	e.clock.Advance(transfer.DefaultWindow + time.Hour)
	result, err := e.run(t, epp.Command{
		Op:          epp.OpTransferRequest,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-c",
		AuthInfo:    "secret",
	})
	if err != nil {
		t.Fatalf("request after expiry: %v", err)
	}
	tr := result.ResData.(*TransferResult)
	if tr.LosingRegistrar != "registrar-b" || tr.GainingRegistrar != "registrar-c" {
		t.Fatalf("new transfer = %+v, want registrar-b -> registrar-c", tr)
	}
}

func TestTransferQueryPartiesOnly(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")
	requestTransfer(t, e, "example.tld")

	result := e.mustRun(t, epp.Command{
		Op:          epp.OpTransferQuery,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-b",
	})
	if result.ResData.(*TransferResult).Status != "PENDING" {
		t.Fatalf("query result = %+v", result.ResData)
	}

	queryResult, err := e.run(t, epp.Command{
		Op:          epp.OpTransferQuery,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-z",
	})
	if err == nil || queryResult.Code != apperrors.EPPAuthorizationError {
		t.Fatalf("stranger query = (%+v, %v), want 2201", queryResult, err)
	}
}

func TestDeleteWithPendingTransferServerCancels(t *testing.T) {
	e := newTestEnv(t)
	createDomain(t, e, "example.tld", "registrar-a")
	requestTransfer(t, e, "example.tld")

	e.clock.Advance(time.Hour)
	e.mustRun(t, epp.Command{
		Op:          epp.OpDelete,
		Resource:    epp.ResourceDomain,
		Target:      "example.tld",
		RegistrarID: "registrar-a",
	})

	// The speculative deadline records were retracted with the transfer:
	// the gaining registrar never sees an automatic approval.
	ctx := context.Background()
	err := e.store.RunInTransaction(ctx, false, func(tx storage.Transaction) error {
		msgs, err := tx.ListPollMessages(ctx, "registrar-b", e.clock.now.Add(transfer.DefaultWindow))
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if msg.TransferStatus == model.TransferServerApproved {
				t.Fatalf("speculative approval %s survived the delete", msg.ID)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect poll messages: %v", err)
	}
}

type contentionTransactor struct {
	failures int
	calls    int
}

func (c *contentionTransactor) RunInTransaction(ctx context.Context, persist bool, fn func(tx storage.Transaction) error) error {
	c.calls++
	if c.calls <= c.failures {
		return fmt.Errorf("%w: simulated", storage.ErrContention)
	}
	return nil
}

func TestEngineRetriesContention(t *testing.T) {
	transactor := &contentionTransactor{failures: 2}
	engine := &Engine{Store: transactor}

	result, err := engine.Run(context.Background(), ModeLive, func(ctx context.Context, tx storage.Transaction) (any, int, error) {
		return nil, apperrors.EPPSuccess, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Code != apperrors.EPPSuccess || transactor.calls != 3 {
		t.Fatalf("result = %+v after %d calls", result, transactor.calls)
	}
}

func TestEngineExhaustsRetries(t *testing.T) {
	transactor := &contentionTransactor{failures: 10}
	engine := &Engine{Store: transactor, MaxAttempts: 2}

	result, err := engine.Run(context.Background(), ModeLive, func(ctx context.Context, tx storage.Transaction) (any, int, error) {
		return nil, apperrors.EPPSuccess, nil
	})
	if err == nil || result.Code != apperrors.EPPCommandFailed {
		t.Fatalf("exhausted retries = (%+v, %v), want 2400", result, err)
	}
	if transactor.calls != 2 {
		t.Fatalf("calls = %d, want MaxAttempts", transactor.calls)
	}
}

func TestEngineMasksInternalErrors(t *testing.T) {
	e := newTestEnv(t)

	internal := errors.New("disk exploded: /var/lib/registry/block 7f3a")
	result, err := e.engine.Run(context.Background(), ModeLive, func(ctx context.Context, tx storage.Transaction) (any, int, error) {
		return nil, 0, internal
	})
	if result.Code != apperrors.EPPCommandFailed {
		t.Fatalf("code = %d, want 2400", result.Code)
	}
	if !apperrors.IsCode(err, apperrors.CodeCommandFailed) {
		t.Fatalf("surfaced err = %v, want opaque command-failed", err)
	}
}
