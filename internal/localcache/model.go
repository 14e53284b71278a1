package localcache

import (
	"time"

	"gorm.io/datatypes"
)

// Record is one entry of the logical-key -> persisted-value mapping used for
// cached customer and session records. Key is "customer/{id}" or
// "session/{id}"; OwnerID carries the customer id for session records so
// cascades can select by owner.
type Record struct {
	Key       string         `gorm:"column:key;type:varchar(255);primaryKey;not null"`
	Kind      string         `gorm:"column:kind;type:varchar(20);index;not null"`
	OwnerID   string         `gorm:"column:owner_id;type:varchar(255);index"`
	Payload   datatypes.JSON `gorm:"column:payload;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Record) TableName() string {
	return "cached_records"
}

const (
	KindCustomer = "customer"
	KindSession  = "session"
)

// AudioBlob is the on-device copy of one recording, keyed by session id.
type AudioBlob struct {
	SessionID string    `gorm:"column:session_id;type:varchar(255);primaryKey;not null"`
	Data      []byte    `gorm:"column:data;type:blob;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (AudioBlob) TableName() string {
	return "audio_blobs"
}

// PendingUpload is one queued retry unit. At most one row exists per session
// id; enqueueing again replaces the prior entry.
type PendingUpload struct {
	SessionID   string     `gorm:"column:session_id;type:varchar(255);primaryKey;not null"`
	Audio       []byte     `gorm:"column:audio;type:blob;not null"`
	RetryCount  int        `gorm:"column:retry_count;type:int;default:0;not null"`
	LastAttempt *time.Time `gorm:"column:last_attempt;type:timestamp"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (PendingUpload) TableName() string {
	return "pending_uploads"
}
