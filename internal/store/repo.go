package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DefaultTurnLimit = 50
	MaxTurnLimit     = 200
)

type Repo struct {
	db    *gorm.DB
	zones map[string]string
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
}

// New migrates the schema. zones maps a zone id to the control address of the
// device serving it; zone ids match case-insensitively.
func New(db *gorm.DB, zones map[string]string) (*Repo, error) {
	if err := db.AutoMigrate(&Device{}, &Port{}, &ChatMessage{}); err != nil {
		return nil, err
	}
	folded := make(map[string]string, len(zones))
	for zone, addr := range zones {
		folded[zoneKey(zone)] = addr
	}
	return &Repo{db: db, zones: folded}, nil
}

// zoneKey folds a zone id for the zone map, whose keys are case-insensitive.
func zoneKey(zone string) string {
	return strings.ToLower(strings.TrimSpace(zone))
}

// FindDevice resolves a zone to its device and control address. A zone listed
// in the zone map is looked up by MAC; any other zone is treated as a device
// id. A nil device with a nil error means not found.
func (r *Repo) FindDevice(ctx context.Context, zoneID string) (*Device, string, error) {
	zoneID = strings.TrimSpace(zoneID)
	if mac, ok := r.zones[zoneKey(zoneID)]; ok {
		dev, err := r.first(ctx, &Device{MacID: mac})
		if err != nil {
			return nil, "", err
		}
		return dev, mac, nil
	}
	dev, err := r.GetDevice(ctx, zoneID)
	if err != nil || dev == nil {
		return nil, "", err
	}
	return dev, dev.MacID, nil
}

func (r *Repo) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	return r.first(ctx, &Device{DeviceID: deviceID})
}

func (r *Repo) first(ctx context.Context, where *Device) (*Device, error) {
	var dev Device
	if err := r.db.WithContext(ctx).Where(where).First(&dev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dev, nil
}

// PrimaryPort returns the device's lowest-positioned port, or nil.
func (r *Repo) PrimaryPort(ctx context.Context, dev *Device) (*Port, error) {
	if dev == nil {
		return nil, nil
	}
	var port Port
	err := r.db.WithContext(ctx).
		Where(&Port{DeviceRef: dev.ID}).
		Order("position asc").
		First(&port).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &port, nil
}

func (r *Repo) ListPorts(ctx context.Context, dev *Device) ([]Port, error) {
	var ports []Port
	if dev == nil {
		return ports, nil
	}
	err := r.db.WithContext(ctx).
		Where(&Port{DeviceRef: dev.ID}).
		Order("position asc").
		Find(&ports).Error
	return ports, err
}

func (r *Repo) RecordTurn(ctx context.Context, m *ChatMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// ListTurns returns a session's turns, newest first.
func (r *Repo) ListTurns(ctx context.Context, deviceID, sessionID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultTurnLimit
	}
	if limit > MaxTurnLimit {
		limit = MaxTurnLimit
	}
	var rows []ChatMessage
	err := r.db.WithContext(ctx).
		Where(&ChatMessage{DeviceID: deviceID, SessionID: sessionID}).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "created_at"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}}).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// PurgeTurnsBefore deletes every turn created before cutoff.
func (r *Repo) PurgeTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&ChatMessage{})
	return res.RowsAffected, res.Error
}
