package flows

import (
	"time"

	"github.com/registrolabs/corenic/internal/registry/model"
)

// CreateResult is the response payload of a create flow.
type CreateResult struct {
	Name         string    `json:"name"`
	RepoID       string    `json:"repoId"`
	CreationTime time.Time `json:"creationTime"`
}

// InfoResult is the response payload of an info flow: the resource's state
// projected at the requested instant.
type InfoResult struct {
	Name                  string         `json:"name"`
	RepoID                string         `json:"repoId"`
	Kind                  string         `json:"kind"`
	SponsoringRegistrar   string         `json:"sponsoringRegistrar"`
	CreatingRegistrar     string         `json:"creatingRegistrar"`
	LastUpdatingRegistrar string         `json:"lastUpdatingRegistrar,omitempty"`
	CreationTime          time.Time      `json:"creationTime"`
	LastUpdateTime        time.Time      `json:"lastUpdateTime"`
	Statuses              []model.Status `json:"statuses"`

	// Domain fields.
	Registrant string   `json:"registrant,omitempty"`
	ContactIDs []string `json:"contactIds,omitempty"`
	HostNames  []string `json:"hostNames,omitempty"`

	// Contact fields.
	Email string `json:"email,omitempty"`

	// Host fields.
	SuperordinateDomain string   `json:"superordinateDomain,omitempty"`
	Addresses           []string `json:"addresses,omitempty"`

	// AuthInfo is disclosed only to the sponsoring registrar or a superuser.
	AuthInfo string `json:"authInfo,omitempty"`

	Transfer *TransferResult `json:"transfer,omitempty"`
}

// TransferResult is the transfer state disclosed by info and transfer flows.
type TransferResult struct {
	Status                string    `json:"status"`
	GainingRegistrar      string    `json:"gainingRegistrar"`
	LosingRegistrar       string    `json:"losingRegistrar"`
	RequestTime           time.Time `json:"requestTime"`
	PendingExpirationTime time.Time `json:"pendingExpirationTime"`
}

func infoResult(res model.Resource, discloseAuth bool) InfoResult {
	life := res.Life()
	out := InfoResult{
		Name:                  life.Name,
		RepoID:                life.RepoID,
		Kind:                  res.ResourceKind().String(),
		SponsoringRegistrar:   life.SponsoringRegistrar,
		CreatingRegistrar:     life.CreatingRegistrar,
		LastUpdatingRegistrar: life.LastUpdatingRegistrar,
		CreationTime:          life.CreationTime,
		LastUpdateTime:        life.LastUpdateTime,
		Statuses:              life.Statuses.Effective(),
	}

	switch v := res.(type) {
	case *model.Domain:
		out.Registrant = v.Registrant
		out.ContactIDs = v.ContactIDs
		out.HostNames = v.HostNames
		if discloseAuth {
			out.AuthInfo = v.AuthInfo
		}
	case *model.Contact:
		out.Email = v.Email
		if discloseAuth {
			out.AuthInfo = v.AuthInfo
		}
	case *model.Host:
		out.SuperordinateDomain = v.SuperordinateDomain
		out.Addresses = v.Addresses
	}

	if transferData := res.Transfer(); transferData != nil && transferData.Status != model.TransferNone {
		out.Transfer = transferResult(*transferData)
	}
	return out
}

func transferResult(t model.TransferData) *TransferResult {
	return &TransferResult{
		Status:                t.Status.String(),
		GainingRegistrar:      t.GainingRegistrar,
		LosingRegistrar:       t.LosingRegistrar,
		RequestTime:           t.RequestTime,
		PendingExpirationTime: t.PendingExpirationTime,
	}
}
