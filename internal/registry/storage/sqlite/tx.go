package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/registrolabs/corenic/internal/registry/model"
	"github.com/registrolabs/corenic/internal/registry/storage"
)

// Tx is one open entity-group transaction.
type Tx struct {
	sqlTx   *sql.Tx
	instant time.Time
	// dirty marks that at least one write happened, so commit advances the
	// group write clock.
	dirty bool
}

// Instant returns the single instant shared by every read and write in this
// transaction.
func (t *Tx) Instant() time.Time {
	return t.instant
}

// GetResource returns the current snapshot stored under repoID.
func (t *Tx) GetResource(ctx context.Context, repoID string) (model.Resource, error) {
	row := t.sqlTx.QueryRowContext(ctx,
		"SELECT payload FROM resources WHERE repo_id = ?", repoID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get resource %s: %w", repoID, err)
	}
	return decodeResource(payload)
}

// PutResource persists the resource, stamps LastUpdateTime with the
// transaction instant, and upserts the day's revision snapshot so later
// reads can reconstruct state as of any past day.
func (t *Tx) PutResource(ctx context.Context, res model.Resource) error {
	life := res.Life()
	if life.RepoID == "" {
		return fmt.Errorf("put resource: repo id is required")
	}

	life.LastUpdateTime = t.instant
	revDate := t.instant.Truncate(24 * time.Hour)
	token := fmt.Sprintf("r%d", toMillis(revDate))
	upsertRevisionPointer(life, revDate, token)

	payload, err := encodeResource(res)
	if err != nil {
		return err
	}

	if _, err := t.sqlTx.ExecContext(ctx, `
INSERT INTO resources (repo_id, kind, name, payload, deletion_at, last_update_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (repo_id) DO UPDATE SET
    kind = excluded.kind,
    name = excluded.name,
    payload = excluded.payload,
    deletion_at = excluded.deletion_at,
    last_update_at = excluded.last_update_at`,
		life.RepoID,
		int(res.ResourceKind()),
		life.Name,
		payload,
		toMillis(life.DeletionTime),
		toMillis(life.LastUpdateTime),
	); err != nil {
		return fmt.Errorf("put resource %s: %w", life.RepoID, err)
	}

	if _, err := t.sqlTx.ExecContext(ctx, `
INSERT INTO resource_revisions (repo_id, token, revision_date, payload)
VALUES (?, ?, ?, ?)
ON CONFLICT (repo_id, token) DO UPDATE SET payload = excluded.payload`,
		life.RepoID,
		token,
		toMillis(revDate),
		payload,
	); err != nil {
		return fmt.Errorf("put resource revision %s: %w", life.RepoID, err)
	}

	t.dirty = true
	return nil
}

// upsertRevisionPointer keeps the in-resource revision list pointing at the
// last committed snapshot of each day, ordered by date ascending.
func upsertRevisionPointer(life *model.Lifecycle, date time.Time, token string) {
	for i := range life.Revisions {
		if life.Revisions[i].Date.Equal(date) {
			life.Revisions[i].Token = token
			return
		}
	}
	life.Revisions = append(life.Revisions, model.RevisionPointer{Date: date, Token: token})
}

// DeleteResource removes the stored snapshot and its revision history.
func (t *Tx) DeleteResource(ctx context.Context, repoID string) error {
	if _, err := t.sqlTx.ExecContext(ctx,
		"DELETE FROM resources WHERE repo_id = ?", repoID); err != nil {
		return fmt.Errorf("delete resource %s: %w", repoID, err)
	}
	if _, err := t.sqlTx.ExecContext(ctx,
		"DELETE FROM resource_revisions WHERE repo_id = ?", repoID); err != nil {
		return fmt.Errorf("delete resource revisions %s: %w", repoID, err)
	}
	t.dirty = true
	return nil
}

// GetRevision loads a historical snapshot by revision token.
func (t *Tx) GetRevision(ctx context.Context, repoID, token string) (model.Resource, error) {
	row := t.sqlTx.QueryRowContext(ctx,
		"SELECT payload FROM resource_revisions WHERE repo_id = ? AND token = ?",
		repoID, token)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get revision %s/%s: %w", repoID, token, err)
	}
	return decodeResource(payload)
}

// ResolveForeignKey returns the (kind, name) entry when it is valid at asOf.
func (t *Tx) ResolveForeignKey(ctx context.Context, kind model.Kind, name string, asOf time.Time) (storage.ForeignKeyEntry, error) {
	row := t.sqlTx.QueryRowContext(ctx,
		"SELECT repo_id, valid_until FROM foreign_keys WHERE kind = ? AND name = ?",
		int(kind), name)
	var repoID string
	var validUntilMillis int64
	if err := row.Scan(&repoID, &validUntilMillis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ForeignKeyEntry{}, storage.ErrNotFound
		}
		return storage.ForeignKeyEntry{}, fmt.Errorf("resolve foreign key %s %s: %w", kind, name, err)
	}

	entry := storage.ForeignKeyEntry{
		Kind:       kind,
		Name:       name,
		RepoID:     repoID,
		ValidUntil: fromMillis(validUntilMillis),
	}
	if !asOf.Before(entry.ValidUntil) {
		return storage.ForeignKeyEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

// PublishForeignKey creates or overwrites the entry for (kind, name).
func (t *Tx) PublishForeignKey(ctx context.Context, entry storage.ForeignKeyEntry) error {
	if _, err := t.sqlTx.ExecContext(ctx, `
INSERT INTO foreign_keys (kind, name, repo_id, valid_until)
VALUES (?, ?, ?, ?)
ON CONFLICT (kind, name) DO UPDATE SET
    repo_id = excluded.repo_id,
    valid_until = excluded.valid_until`,
		int(entry.Kind),
		entry.Name,
		entry.RepoID,
		toMillis(entry.ValidUntil),
	); err != nil {
		return fmt.Errorf("publish foreign key %s %s: %w", entry.Kind, entry.Name, err)
	}
	t.dirty = true
	return nil
}

// RetireForeignKey ends the entry's validity window at validUntil.
func (t *Tx) RetireForeignKey(ctx context.Context, kind model.Kind, name string, validUntil time.Time) error {
	res, err := t.sqlTx.ExecContext(ctx,
		"UPDATE foreign_keys SET valid_until = ? WHERE kind = ? AND name = ?",
		toMillis(validUntil), int(kind), name)
	if err != nil {
		return fmt.Errorf("retire foreign key %s %s: %w", kind, name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retire foreign key %s %s: %w", kind, name, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	t.dirty = true
	return nil
}

// PutPollMessage persists a registrar notification record.
func (t *Tx) PutPollMessage(ctx context.Context, msg model.PollMessage) error {
	if _, err := t.sqlTx.ExecContext(ctx, `
INSERT INTO poll_messages (
    id, registrar_id, event_at, type, message,
    resource_kind, resource_name, transfer_status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    registrar_id = excluded.registrar_id,
    event_at = excluded.event_at,
    type = excluded.type,
    message = excluded.message,
    resource_kind = excluded.resource_kind,
    resource_name = excluded.resource_name,
    transfer_status = excluded.transfer_status`,
		msg.ID,
		msg.RegistrarID,
		toMillis(msg.EventTime),
		string(msg.Type),
		msg.Message,
		int(msg.ResourceKind),
		msg.ResourceName,
		int(msg.TransferStatus),
	); err != nil {
		return fmt.Errorf("put poll message %s: %w", msg.ID, err)
	}
	t.dirty = true
	return nil
}

// GetPollMessage loads one poll message by id.
func (t *Tx) GetPollMessage(ctx context.Context, id string) (model.PollMessage, error) {
	row := t.sqlTx.QueryRowContext(ctx, `
SELECT id, registrar_id, event_at, type, message,
       resource_kind, resource_name, transfer_status
FROM poll_messages WHERE id = ?`, id)
	msg, err := scanPollMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PollMessage{}, storage.ErrNotFound
		}
		return model.PollMessage{}, fmt.Errorf("get poll message %s: %w", id, err)
	}
	return msg, nil
}

// DeletePollMessage retracts a poll message, typically a speculative record
// of a transfer that resolved before its deadline.
func (t *Tx) DeletePollMessage(ctx context.Context, id string) error {
	if _, err := t.sqlTx.ExecContext(ctx,
		"DELETE FROM poll_messages WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete poll message %s: %w", id, err)
	}
	t.dirty = true
	return nil
}

// ListPollMessages returns the messages visible to a registrar at asOf.
// Deadline-dated speculative records stay invisible until asOf passes their
// event time.
func (t *Tx) ListPollMessages(ctx context.Context, registrarID string, asOf time.Time) ([]model.PollMessage, error) {
	rows, err := t.sqlTx.QueryContext(ctx, `
SELECT id, registrar_id, event_at, type, message,
       resource_kind, resource_name, transfer_status
FROM poll_messages
WHERE registrar_id = ? AND event_at <= ?
ORDER BY event_at, id`, registrarID, toMillis(asOf))
	if err != nil {
		return nil, fmt.Errorf("list poll messages for %s: %w", registrarID, err)
	}
	defer rows.Close()

	var out []model.PollMessage
	for rows.Next() {
		msg, err := scanPollMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poll messages: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPollMessage(row rowScanner) (model.PollMessage, error) {
	var msg model.PollMessage
	var eventMillis int64
	var msgType string
	var kind, transferStatus int
	if err := row.Scan(
		&msg.ID,
		&msg.RegistrarID,
		&eventMillis,
		&msgType,
		&msg.Message,
		&kind,
		&msg.ResourceName,
		&transferStatus,
	); err != nil {
		return model.PollMessage{}, err
	}
	msg.EventTime = fromMillis(eventMillis)
	msg.Type = model.PollMessageType(msgType)
	msg.ResourceKind = model.Kind(kind)
	msg.TransferStatus = model.TransferStatus(transferStatus)
	return msg, nil
}

// PutBillingEvent persists a billable side-effect record.
func (t *Tx) PutBillingEvent(ctx context.Context, evt model.BillingEvent) error {
	if _, err := t.sqlTx.ExecContext(ctx, `
INSERT INTO billing_events (
    id, registrar_id, event_at, type, amount_cents,
    description, resource_kind, resource_name
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    registrar_id = excluded.registrar_id,
    event_at = excluded.event_at,
    type = excluded.type,
    amount_cents = excluded.amount_cents,
    description = excluded.description,
    resource_kind = excluded.resource_kind,
    resource_name = excluded.resource_name`,
		evt.ID,
		evt.RegistrarID,
		toMillis(evt.EventTime),
		string(evt.Type),
		evt.AmountCents,
		evt.Description,
		int(evt.ResourceKind),
		evt.ResourceName,
	); err != nil {
		return fmt.Errorf("put billing event %s: %w", evt.ID, err)
	}
	t.dirty = true
	return nil
}

// GetBillingEvent loads one billing event by id.
func (t *Tx) GetBillingEvent(ctx context.Context, id string) (model.BillingEvent, error) {
	row := t.sqlTx.QueryRowContext(ctx, `
SELECT id, registrar_id, event_at, type, amount_cents,
       description, resource_kind, resource_name
FROM billing_events WHERE id = ?`, id)
	var evt model.BillingEvent
	var eventMillis int64
	var evtType string
	var kind int
	if err := row.Scan(
		&evt.ID,
		&evt.RegistrarID,
		&eventMillis,
		&evtType,
		&evt.AmountCents,
		&evt.Description,
		&kind,
		&evt.ResourceName,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BillingEvent{}, storage.ErrNotFound
		}
		return model.BillingEvent{}, fmt.Errorf("get billing event %s: %w", id, err)
	}
	evt.EventTime = fromMillis(eventMillis)
	evt.Type = model.BillingEventType(evtType)
	evt.ResourceKind = model.Kind(kind)
	return evt, nil
}

// DeleteBillingEvent retracts a billing event, typically a speculative
// record of a transfer that resolved before its deadline.
func (t *Tx) DeleteBillingEvent(ctx context.Context, id string) error {
	if _, err := t.sqlTx.ExecContext(ctx,
		"DELETE FROM billing_events WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete billing event %s: %w", id, err)
	}
	t.dirty = true
	return nil
}

// SetDomainReferences replaces the reference rows of a domain.
func (t *Tx) SetDomainReferences(ctx context.Context, domainRepoID string, contactIDs, hostNames []string) error {
	if err := t.ClearDomainReferences(ctx, domainRepoID); err != nil {
		return err
	}
	insert := func(kind model.Kind, name string) error {
		_, err := t.sqlTx.ExecContext(ctx, `
INSERT INTO domain_references (domain_repo_id, ref_kind, ref_name)
VALUES (?, ?, ?)
ON CONFLICT (domain_repo_id, ref_kind, ref_name) DO NOTHING`,
			domainRepoID, int(kind), name)
		return err
	}
	for _, contactID := range contactIDs {
		if err := insert(model.KindContact, contactID); err != nil {
			return fmt.Errorf("set domain reference %s -> contact %s: %w", domainRepoID, contactID, err)
		}
	}
	for _, hostName := range hostNames {
		if err := insert(model.KindHost, hostName); err != nil {
			return fmt.Errorf("set domain reference %s -> host %s: %w", domainRepoID, hostName, err)
		}
	}
	t.dirty = true
	return nil
}

// ClearDomainReferences removes all reference rows of a domain.
func (t *Tx) ClearDomainReferences(ctx context.Context, domainRepoID string) error {
	if _, err := t.sqlTx.ExecContext(ctx,
		"DELETE FROM domain_references WHERE domain_repo_id = ?", domainRepoID); err != nil {
		return fmt.Errorf("clear domain references %s: %w", domainRepoID, err)
	}
	t.dirty = true
	return nil
}

// CountReferences returns how many domains currently reference the named
// contact or host.
func (t *Tx) CountReferences(ctx context.Context, kind model.Kind, name string) (int, error) {
	row := t.sqlTx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM domain_references WHERE ref_kind = ? AND ref_name = ?",
		int(kind), name)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count references to %s %s: %w", kind, name, err)
	}
	return count, nil
}
