package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Platform is the closed set of social destinations a post can target.
type Platform string

const (
	PlatformLinkedIn Platform = "LINKEDIN"
	PlatformTwitter  Platform = "TWITTER"
)

// Platforms lists every supported platform in a stable order.
func Platforms() []Platform {
	return []Platform{PlatformLinkedIn, PlatformTwitter}
}

// ParsePlatform validates a client-supplied platform value.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToUpper(strings.TrimSpace(s))) {
	case PlatformLinkedIn:
		return PlatformLinkedIn, nil
	case PlatformTwitter:
		return PlatformTwitter, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// PostStatus tracks a post through its drafting and publishing lifecycle.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "DRAFT"
	PostStatusPending   PostStatus = "PENDING"
	PostStatusPublished PostStatus = "PUBLISHED"
	PostStatusScheduled PostStatus = "SCHEDULED"
)

// User mirrors an account owned by the hosted identity provider.
// ExternalID is the provider's user id; the uniqueness constraint is what
// keeps duplicate webhook deliveries and concurrent first requests from
// creating two rows.
type User struct {
	ID         string     `gorm:"primaryKey;size:36"`
	ExternalID string     `gorm:"uniqueIndex;size:191;not null"`
	Email      string     `gorm:"uniqueIndex;size:191;not null"`
	Name       string     `gorm:"size:191"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Templates  []Template `gorm:"constraint:OnDelete:CASCADE"`
	Posts      []Post     `gorm:"constraint:OnDelete:CASCADE"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Template is a named, user-owned set of per-platform prompts used to
// transform raw content. At most one template per user carries IsDefault.
type Template struct {
	ID                string             `gorm:"primaryKey;size:36"`
	Name              string             `gorm:"size:255;not null"`
	Description       string             `gorm:"size:1024"`
	IsDefault         bool               `gorm:"default:false;index"`
	UserID            string             `gorm:"size:36;index;not null"`
	User              User               `gorm:"constraint:OnDelete:CASCADE"`
	PlatformTemplates []PlatformTemplate `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (t *Template) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// PlatformTemplate is the per-platform prompt child of a Template.
type PlatformTemplate struct {
	ID         string   `gorm:"primaryKey;size:36"`
	TemplateID string   `gorm:"size:36;not null;uniqueIndex:idx_template_platform"`
	Platform   Platform `gorm:"size:16;not null;uniqueIndex:idx_template_platform"`
	Prompt     string   `gorm:"type:text;not null"`
	Template   Template `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (pt *PlatformTemplate) BeforeCreate(*gorm.DB) error {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	return nil
}

// Post is a user-authored draft plus its per-platform generated outputs.
type Post struct {
	ID               string         `gorm:"primaryKey;size:36"`
	UserID           string         `gorm:"size:36;index;not null"`
	User             User           `gorm:"constraint:OnDelete:CASCADE"`
	Title            string         `gorm:"size:255;not null"`
	Content          string         `gorm:"type:text;not null"`
	FormattedContent string         `gorm:"type:text"`
	Status           PostStatus     `gorm:"size:16;default:'DRAFT';index"`
	ImageURL         string         `gorm:"size:512"`
	ScheduledAt      *time.Time
	PublishedAt      *time.Time
	PostTemplates    []PostTemplate `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p *Post) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PostTemplate joins a Post to the Template used for one platform and
// carries that platform's generated output.
type PostTemplate struct {
	ID               string   `gorm:"primaryKey;size:36"`
	PostID           string   `gorm:"size:36;index;not null"`
	TemplateID       string   `gorm:"size:36;index;not null"`
	Platform         Platform `gorm:"size:16;not null"`
	GeneratedContent string   `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (pt *PostTemplate) BeforeCreate(*gorm.DB) error {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	return nil
}

// IdentityEvent records every verified lifecycle event received from the
// identity provider, raw payload included, for auditing.
type IdentityEvent struct {
	ID         uint           `gorm:"primaryKey"`
	EventType  string         `gorm:"size:64;index"`
	ExternalID string         `gorm:"size:191;index"`
	Payload    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time
}
