package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/northbeam-ai/sitegate/pkg/config"
)

// leadRecord is the table layout. EmailKey holds the lower-cased address so
// that the unique index is case-insensitive on every dialect.
type leadRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:200;not null"`
	Email     string    `gorm:"size:200;not null"`
	EmailKey  string    `gorm:"size:200;not null;uniqueIndex"`
	Company   string    `gorm:"size:200"`
	Phone     string    `gorm:"size:200"`
	Service   string    `gorm:"size:200"`
	Budget    string    `gorm:"size:200"`
	Message   string    `gorm:"type:text"`
	Source    string    `gorm:"size:200"`
	ClientIP  string    `gorm:"size:64"`
	UserAgent string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"index"`
}

func (leadRecord) TableName() string { return "leads" }

func toRecord(l *Lead) leadRecord {
	return leadRecord{
		ID: l.ID, Name: l.Name, Email: l.Email, EmailKey: strings.ToLower(l.Email),
		Company: l.Company, Phone: l.Phone, Service: l.Service, Budget: l.Budget,
		Message: l.Message, Source: l.Source, ClientIP: l.ClientIP, UserAgent: l.UserAgent,
		CreatedAt: l.CreatedAt,
	}
}

func (r leadRecord) lead() Lead {
	return Lead{
		ID: r.ID, Name: r.Name, Email: r.Email,
		Company: r.Company, Phone: r.Phone, Service: r.Service, Budget: r.Budget,
		Message: r.Message, Source: r.Source, ClientIP: r.ClientIP, UserAgent: r.UserAgent,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// OpenDB connects to the configured database. Postgres URLs include hosted
// Postgres providers such as Supabase.
func OpenDB(cfg config.Database, log *zap.SugaredLogger) (*gorm.DB, error) {
	var dia gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dia = postgres.Open(cfg.URL)
	case "sqlite":
		dia = sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dia, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s database: %w", cfg.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("configure connections: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)

	if log != nil {
		log.Infow("Connected to database", "driver", cfg.Driver)
	}
	return db, nil
}

// GormStore persists leads in a SQL database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db and migrates the leads table.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&leadRecord{}); err != nil {
		return nil, fmt.Errorf("migrate leads table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, lead *Lead) error {
	rec := toRecord(lead)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&leadRecord{}).Where("email_key = ?", rec.EmailKey).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

func (s *GormStore) Get(ctx context.Context, id string) (Lead, error) {
	var rec leadRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return rec.lead(), nil
}

func (s *GormStore) List(ctx context.Context, page Page) ([]Lead, int64, error) {
	page = page.Normalize()
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&leadRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var recs []leadRecord
	err := db.Order("created_at DESC").Order("id DESC").
		Offset(page.offset()).Limit(page.PageSize).
		Find(&recs).Error
	if err != nil {
		return nil, 0, err
	}
	leads := make([]Lead, 0, len(recs))
	for _, r := range recs {
		leads = append(leads, r.lead())
	}
	return leads, total, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&leadRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
