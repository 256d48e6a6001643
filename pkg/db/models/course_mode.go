package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// CourseMode is one offered track for a course run. Every active enrollment's
// mode must correspond to some (possibly expired) row.
type CourseMode struct {
	ID       uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CourseID coursekey.CourseKey `gorm:"column:course_id;type:varchar(255);not null;uniqueIndex:uq_course_mode,priority:1"`
	Slug     enums.ModeSlug      `gorm:"column:slug;type:varchar(32);not null;uniqueIndex:uq_course_mode,priority:2"`

	Name     string          `gorm:"column:name;type:varchar(255);not null"`
	MinPrice decimal.Decimal `gorm:"column:min_price;type:numeric(12,2);not null;default:0"`
	Currency string          `gorm:"column:currency;type:varchar(8);not null;default:'usd'"`

	ExpirationDatetime *time.Time      `gorm:"column:expiration_datetime"`
	SuggestedPrices    dbtypes.IntList `gorm:"column:suggested_prices;type:jsonb;not null;default:'[]'"`

	SKU         string `gorm:"column:sku;type:varchar(255)"`
	BulkSKU     string `gorm:"column:bulk_sku;type:varchar(255)"`
	Description string `gorm:"column:description;type:text"`

	Position int `gorm:"column:position;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether the mode can no longer be selected at the given
// instant.
func (m CourseMode) IsExpired(at time.Time) bool {
	return m.ExpirationDatetime != nil && m.ExpirationDatetime.Before(at)
}
