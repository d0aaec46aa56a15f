package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/registrolabs/corenic/internal/registry/model"
)

// Stored payloads use an explicit per-variant envelope with a kind tag, so
// a row decodes without reflection tricks and unknown kinds fail loudly.

type lifecyclePayload struct {
	RepoID                string            `json:"repo_id"`
	Name                  string            `json:"name"`
	SponsoringRegistrar   string            `json:"sponsoring_registrar"`
	CreatingRegistrar     string            `json:"creating_registrar"`
	LastUpdatingRegistrar string            `json:"last_updating_registrar,omitempty"`
	CreationTime          time.Time         `json:"creation_time"`
	DeletionTime          time.Time         `json:"deletion_time"`
	LastUpdateTime        time.Time         `json:"last_update_time"`
	Statuses              []model.Status    `json:"statuses,omitempty"`
	Revisions             []revisionPayload `json:"revisions,omitempty"`
}

type revisionPayload struct {
	Date  time.Time `json:"date"`
	Token string    `json:"token"`
}

type transferPayload struct {
	Status                  int       `json:"status"`
	GainingRegistrar        string    `json:"gaining_registrar,omitempty"`
	LosingRegistrar         string    `json:"losing_registrar,omitempty"`
	RequestTime             time.Time `json:"request_time,omitzero"`
	PendingExpirationTime   time.Time `json:"pending_expiration_time,omitzero"`
	ServerApproveEntityKeys []string  `json:"server_approve_entity_keys,omitempty"`
}

type domainPayload struct {
	Registrant string   `json:"registrant"`
	ContactIDs []string `json:"contact_ids,omitempty"`
	HostNames  []string `json:"host_names,omitempty"`
	AuthInfo   string   `json:"auth_info,omitempty"`
}

type contactPayload struct {
	Email    string `json:"email,omitempty"`
	AuthInfo string `json:"auth_info,omitempty"`
}

type hostPayload struct {
	SuperordinateDomain string   `json:"superordinate_domain,omitempty"`
	Addresses           []string `json:"addresses,omitempty"`
}

type resourcePayload struct {
	Kind      string           `json:"kind"`
	Lifecycle lifecyclePayload `json:"lifecycle"`
	Transfer  *transferPayload `json:"transfer,omitempty"`
	Domain    *domainPayload   `json:"domain,omitempty"`
	Contact   *contactPayload  `json:"contact,omitempty"`
	Host      *hostPayload     `json:"host,omitempty"`
}

func encodeLifecycle(l *model.Lifecycle) lifecyclePayload {
	out := lifecyclePayload{
		RepoID:                l.RepoID,
		Name:                  l.Name,
		SponsoringRegistrar:   l.SponsoringRegistrar,
		CreatingRegistrar:     l.CreatingRegistrar,
		LastUpdatingRegistrar: l.LastUpdatingRegistrar,
		CreationTime:          l.CreationTime,
		DeletionTime:          l.DeletionTime,
		LastUpdateTime:        l.LastUpdateTime,
	}
	for _, status := range l.Statuses.Effective() {
		if status == model.StatusOK {
			continue
		}
		out.Statuses = append(out.Statuses, status)
	}
	for _, rev := range l.Revisions {
		out.Revisions = append(out.Revisions, revisionPayload{Date: rev.Date, Token: rev.Token})
	}
	return out
}

func decodeLifecycle(p lifecyclePayload, dst *model.Lifecycle) {
	dst.RepoID = p.RepoID
	dst.Name = p.Name
	dst.SponsoringRegistrar = p.SponsoringRegistrar
	dst.CreatingRegistrar = p.CreatingRegistrar
	dst.LastUpdatingRegistrar = p.LastUpdatingRegistrar
	dst.CreationTime = p.CreationTime.UTC()
	dst.DeletionTime = p.DeletionTime.UTC()
	dst.LastUpdateTime = p.LastUpdateTime.UTC()
	dst.Statuses = model.NewStatusSet(p.Statuses...)
	for _, rev := range p.Revisions {
		dst.Revisions = append(dst.Revisions, model.RevisionPointer{Date: rev.Date.UTC(), Token: rev.Token})
	}
}

func encodeTransfer(t *model.TransferData) *transferPayload {
	if t == nil {
		return nil
	}
	return &transferPayload{
		Status:                  int(t.Status),
		GainingRegistrar:        t.GainingRegistrar,
		LosingRegistrar:         t.LosingRegistrar,
		RequestTime:             t.RequestTime,
		PendingExpirationTime:   t.PendingExpirationTime,
		ServerApproveEntityKeys: append([]string(nil), t.ServerApproveEntityKeys...),
	}
}

func decodeTransfer(p *transferPayload) model.TransferData {
	if p == nil {
		return model.TransferData{}
	}
	return model.TransferData{
		Status:                  model.TransferStatus(p.Status),
		GainingRegistrar:        p.GainingRegistrar,
		LosingRegistrar:         p.LosingRegistrar,
		RequestTime:             p.RequestTime.UTC(),
		PendingExpirationTime:   p.PendingExpirationTime.UTC(),
		ServerApproveEntityKeys: append([]string(nil), p.ServerApproveEntityKeys...),
	}
}

func encodeResource(res model.Resource) ([]byte, error) {
	payload := resourcePayload{
		Kind:      res.ResourceKind().String(),
		Lifecycle: encodeLifecycle(res.Life()),
	}

	switch v := res.(type) {
	case *model.Domain:
		payload.Transfer = encodeTransfer(&v.TransferData)
		payload.Domain = &domainPayload{
			Registrant: v.Registrant,
			ContactIDs: append([]string(nil), v.ContactIDs...),
			HostNames:  append([]string(nil), v.HostNames...),
			AuthInfo:   v.AuthInfo,
		}
	case *model.Contact:
		payload.Transfer = encodeTransfer(&v.TransferData)
		payload.Contact = &contactPayload{
			Email:    v.Email,
			AuthInfo: v.AuthInfo,
		}
	case *model.Host:
		payload.Host = &hostPayload{
			SuperordinateDomain: v.SuperordinateDomain,
			Addresses:           append([]string(nil), v.Addresses...),
		}
	default:
		return nil, fmt.Errorf("encode resource: unsupported type %T", res)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode resource %s: %w", res.Life().RepoID, err)
	}
	return data, nil
}

func decodeResource(data []byte) (model.Resource, error) {
	var payload resourcePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode resource payload: %w", err)
	}

	switch payload.Kind {
	case model.KindDomain.String():
		if payload.Domain == nil {
			return nil, fmt.Errorf("decode resource: domain payload missing")
		}
		out := &model.Domain{
			Registrant:   payload.Domain.Registrant,
			ContactIDs:   append([]string(nil), payload.Domain.ContactIDs...),
			HostNames:    append([]string(nil), payload.Domain.HostNames...),
			AuthInfo:     payload.Domain.AuthInfo,
			TransferData: decodeTransfer(payload.Transfer),
		}
		decodeLifecycle(payload.Lifecycle, &out.Lifecycle)
		return out, nil
	case model.KindContact.String():
		if payload.Contact == nil {
			return nil, fmt.Errorf("decode resource: contact payload missing")
		}
		out := &model.Contact{
			Email:        payload.Contact.Email,
			AuthInfo:     payload.Contact.AuthInfo,
			TransferData: decodeTransfer(payload.Transfer),
		}
		decodeLifecycle(payload.Lifecycle, &out.Lifecycle)
		return out, nil
	case model.KindHost.String():
		if payload.Host == nil {
			return nil, fmt.Errorf("decode resource: host payload missing")
		}
		out := &model.Host{
			SuperordinateDomain: payload.Host.SuperordinateDomain,
			Addresses:           append([]string(nil), payload.Host.Addresses...),
		}
		decodeLifecycle(payload.Lifecycle, &out.Lifecycle)
		return out, nil
	default:
		return nil, fmt.Errorf("decode resource: unknown kind %q", payload.Kind)
	}
}
