package storage

import (
	"github.com/SolarDomo/HttpData/internal/proxypool/models"
)

// AbsIdentityStorage persists the identity list between runs.
type AbsIdentityStorage interface {
	HasIdentity(identity *models.Identity) (bool, error)
	CreateIdentity(identity *models.Identity) error
	CreateIdentityList(identities []*models.Identity) int
	DeleteIdentity(identity *models.Identity) error
	GetAllIdentities() ([]*models.Identity, error)
	Close() error
}
