package session

import (
	"time"
)

// Session identifies one recorded interaction with a customer. The id is
// caller-generated from the customer id plus a timestamp, so re-upload of the
// same take never creates a second row.
type Session struct {
	ID           string    `gorm:"column:id;type:varchar(255);primaryKey;not null" json:"id"`
	CustomerID   string    `gorm:"column:customer_id;type:varchar(255);index;not null" json:"customer_id"`
	CustomerName string    `gorm:"column:customer_name;type:varchar(255)"          json:"customer_name"`
	Date         time.Time `gorm:"column:date;not null"                            json:"date"`
	Transcript   string    `gorm:"column:transcript;type:text"                     json:"transcript"`
	Duration     int       `gorm:"column:duration;type:int;default:0;not null"     json:"duration"`
	AudioURL     string    `gorm:"column:audio_url;type:text"                      json:"audio_url"`
	Status       string    `gorm:"column:status;type:varchar(20);default:'pending';not null" json:"status"`
}

func (Session) TableName() string {
	return "sessions"
}

const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)
