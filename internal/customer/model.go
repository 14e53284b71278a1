package customer

import (
	"time"
)

type Customer struct {
	ID        string    `gorm:"column:id;type:varchar(255);primaryKey;not null" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null"          json:"name"`
	Email     string    `gorm:"column:email;type:varchar(255)"                  json:"email"`
	Phone     string    `gorm:"column:phone;type:varchar(64)"                   json:"phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"                json:"created_at"`
}

func (Customer) TableName() string {
	return "customers"
}
