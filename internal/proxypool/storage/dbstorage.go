package storage

import (
	"errors"
	"fmt"

	"github.com/SolarDomo/HttpData/internal/proxypool/models"
	"github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/sirupsen/logrus"
)

var (
	ErrNilIdentity    = errors.New("identity is nil")
	ErrIdentityExists = errors.New("identity already exists")
)

type Config struct {
	Dialect string `mapstructure:"dialect"`
	DSN     string `mapstructure:"dsn"`
}

var DefaultConfig = Config{
	Dialect: "sqlite3",
	DSN:     "./instance/identities.db3",
}

func (this Config) Validate() error {
	switch this.Dialect {
	case "sqlite3":
		if this.DSN == "" {
			return fmt.Errorf("sqlite3 storage needs a file path")
		}
	case "mysql":
		if _, err := mysql.ParseDSN(this.DSN); err != nil {
			return fmt.Errorf("bad mysql dsn: %w", err)
		}
	default:
		return fmt.Errorf("unsupported storage dialect %q", this.Dialect)
	}
	return nil
}

type DBStorage struct {
	dbConn *gorm.DB
}

var _ AbsIdentityStorage = (*DBStorage)(nil)

func NewDBStorage(cfg Config) (*DBStorage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := gorm.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"Error":   err,
			"Dialect": cfg.Dialect,
		}).Error("cannot open identity storage")
		return nil, err
	}

	if !dbConn.HasTable(&models.Identity{}) {
		if err := dbConn.CreateTable(&models.Identity{}).Error; err != nil {
			logrus.WithField("Error", err).Error("cannot create identity table")
			_ = dbConn.Close()
			return nil, err
		}
	}

	return &DBStorage{dbConn: dbConn}, nil
}

func (this *DBStorage) HasIdentity(identity *models.Identity) (bool, error) {
	if identity == nil {
		return false, ErrNilIdentity
	}

	count := 0
	err := this.dbConn.Model(&models.Identity{}).
		Where("endpoint = ? AND user = ?", identity.Endpoint, identity.User).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count != 0, nil
}

func (this *DBStorage) CreateIdentity(identity *models.Identity) error {
	if identity == nil {
		return ErrNilIdentity
	}

	exists, err := this.HasIdentity(identity)
	if err != nil {
		return err
	} else if exists {
		return ErrIdentityExists
	}

	return this.dbConn.Create(identity).Error
}

// CreateIdentityList stores every identity not stored yet and returns how many were added.
func (this *DBStorage) CreateIdentityList(identities []*models.Identity) int {
	createCount := 0
	for _, identity := range identities {
		err := this.CreateIdentity(identity)
		if err == nil {
			createCount++
		} else if !errors.Is(err, ErrIdentityExists) {
			logrus.WithFields(logrus.Fields{
				"Error":    err,
				"Identity": identity,
			}).Info("cannot store identity")
		}
	}
	return createCount
}

func (this *DBStorage) DeleteIdentity(identity *models.Identity) error {
	if identity == nil {
		return ErrNilIdentity
	}
	return this.dbConn.Where("id = ?", identity.ID).Delete(&models.Identity{}).Error
}

func (this *DBStorage) GetAllIdentities() ([]*models.Identity, error) {
	identities := make([]*models.Identity, 0)
	err := this.dbConn.Model(&models.Identity{}).Order("endpoint").Find(&identities).Error
	if err != nil {
		return nil, err
	}
	return identities, nil
}

func (this *DBStorage) Close() error {
	return this.dbConn.Close()
}
