package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Device is the authoritative record of an air-conditioning controller.
type Device struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID     string     `gorm:"uniqueIndex;size:64" json:"deviceId"`
	MacID        string     `gorm:"uniqueIndex;size:64" json:"macId"`
	Name         string     `json:"name,omitempty"`
	Online       bool       `json:"online"`
	LastPing     *time.Time `json:"lastPing,omitempty"`
	HumidityPct  *float64   `json:"humidityPct"`
	ConsumptionW *float64   `json:"consumptionW"`
	RunHours     *float64   `json:"runHours"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Port is one controllable channel of a device. Val is 1 when powered on.
type Port struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceRef  uuid.UUID `gorm:"type:uuid;index" json:"deviceRef"`
	Position   int       `json:"position"`
	Val        *int      `json:"val"`
	ACMode     *int      `gorm:"column:ac_mode" json:"acMode"`
	ACTemp     *float64  `gorm:"column:ac_temp" json:"acTemp"`
	ACFanSpeed *int      `gorm:"column:ac_fan_speed" json:"acFanSpeed"`
	RoomTemp   string    `json:"roomTemp"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ChatMessage is one stored conversation turn.
type ChatMessage struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID       string         `gorm:"index:idx_chat_session,priority:1;size:64" json:"deviceId"`
	SessionID      string         `gorm:"index:idx_chat_session,priority:2;size:80" json:"sessionId"`
	Role           string         `gorm:"size:16" json:"role"`
	Text           string         `gorm:"type:text" json:"text"`
	Intent         string         `gorm:"size:32" json:"intent,omitempty"`
	RequiresAction *bool          `json:"requiresAction,omitempty"`
	Action         datatypes.JSON `gorm:"type:jsonb" json:"action,omitempty"`
	RequestID      string         `gorm:"index;size:64" json:"requestId,omitempty"`
	CreatedAt      time.Time      `gorm:"index:idx_chat_session,priority:3" json:"createdAt"`
}

func (d *Device) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (p *Port) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (m *ChatMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
