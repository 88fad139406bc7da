package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"socialdraft/internal/database"
)

// Lifecycle event types delivered by the identity provider.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

var (
	// ErrMissingEmail marks a created/updated event without a primary email.
	ErrMissingEmail = errors.New("event missing primary email")
	// ErrUserNotFound marks an update for an external id with no local row.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnhandledEventType marks event types this service does not mirror.
	ErrUnhandledEventType = errors.New("unhandled event type")
)

// Event is the provider's lifecycle event envelope.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData carries the user fields of a lifecycle event.
type EventData struct {
	ID             string         `json:"id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
}

// EmailAddress is one entry of the provider's email list.
type EmailAddress struct {
	EmailAddress string `json:"email_address"`
}

// PrimaryEmail returns the first email on the event, or empty.
func (d EventData) PrimaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	return strings.TrimSpace(d.EmailAddresses[0].EmailAddress)
}

// DisplayName derives a name from first/last, falling back to whichever is present.
func (d EventData) DisplayName() string {
	first := strings.TrimSpace(d.FirstName)
	last := strings.TrimSpace(d.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}

// Service mirrors identity-provider users into local rows and provisions
// the fixed default template set for new users.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewService constructs the identity bridge.
func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger}
}

// ApplyEvent mirrors one verified lifecycle event into local state.
// Duplicate created events are idempotent: the unique index on external_id
// turns the second insert into a no-op.
func (s *Service) ApplyEvent(ctx context.Context, evt Event) error {
	if strings.TrimSpace(evt.Data.ID) == "" {
		return fmt.Errorf("%w: event missing user id", ErrUnhandledEventType)
	}

	var err error
	switch evt.Type {
	case EventUserCreated:
		err = s.applyCreated(ctx, evt.Data)
	case EventUserUpdated:
		err = s.applyUpdated(ctx, evt.Data)
	case EventUserDeleted:
		err = s.applyDeleted(ctx, evt.Data)
	default:
		return fmt.Errorf("%w: %q", ErrUnhandledEventType, evt.Type)
	}
	if err != nil {
		return err
	}

	s.recordEvent(ctx, evt)
	return nil
}

func (s *Service) applyCreated(ctx context.Context, data EventData) error {
	email := data.PrimaryEmail()
	if email == "" {
		return ErrMissingEmail
	}

	user := database.User{
		ExternalID: data.ID,
		Email:      email,
		Name:       data.DisplayName(),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(&user)
	if res.Error != nil {
		return fmt.Errorf("create user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		s.logger.Info("duplicate user.created event ignored", slog.String("external_id", data.ID))
		return nil
	}

	if err := s.SeedDefaultTemplates(ctx, user.ID); err != nil {
		return fmt.Errorf("seed default templates: %w", err)
	}

	s.logger.Info("user created from identity event",
		slog.String("external_id", data.ID),
		slog.String("user_id", user.ID),
	)
	return nil
}

func (s *Service) applyUpdated(ctx context.Context, data EventData) error {
	email := data.PrimaryEmail()
	if email == "" {
		return ErrMissingEmail
	}

	res := s.db.WithContext(ctx).
		Model(&database.User{}).
		Where("external_id = ?", data.ID).
		Updates(map[string]any{
			"email": email,
			"name":  data.DisplayName(),
		})
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: external id %s", ErrUserNotFound, data.ID)
	}
	return nil
}

func (s *Service) applyDeleted(ctx context.Context, data EventData) error {
	if err := s.db.WithContext(ctx).
		Where("external_id = ?", data.ID).
		Delete(&database.User{}).Error; err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *Service) recordEvent(ctx context.Context, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	audit := database.IdentityEvent{
		EventType:  evt.Type,
		ExternalID: evt.Data.ID,
		Payload:    datatypes.JSON(payload),
	}
	if err := s.db.WithContext(ctx).Create(&audit).Error; err != nil {
		s.logger.Warn("record identity event failed", slog.Any("error", err))
	}
}

// EnsureUser resolves the local row for an external id, creating a
// placeholder row (and seeding default templates) on first use. The
// repair path is idempotent: a concurrent first request loses the insert
// on the external_id unique index and re-reads the winner's row.
func (s *Service) EnsureUser(ctx context.Context, externalID string) (*database.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, errors.New("external id is required")
	}

	var user database.User
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("query user: %w", err)
	}

	user = database.User{
		ExternalID: externalID,
		Email:      externalID + "@placeholder.local",
		Name:       "New User",
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(&user)
	if res.Error != nil {
		return nil, fmt.Errorf("create placeholder user: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// Lost the race; the winning insert holds the row.
		if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
			return nil, fmt.Errorf("reload user after conflict: %w", err)
		}
		return &user, nil
	}

	if err := s.SeedDefaultTemplates(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("seed default templates: %w", err)
	}

	s.logger.Info("provisioned placeholder user on first use",
		slog.String("external_id", externalID),
		slog.String("user_id", user.ID),
	)
	return &user, nil
}

// SeedDefaultTemplates creates the fixed starter template set for a user.
// No-op when the user already owns templates, so retried creation paths
// cannot double-seed.
func (s *Service) SeedDefaultTemplates(ctx context.Context, userID string) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&database.Template{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count templates: %w", err)
	}
	if count > 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, seed := range DefaultTemplates() {
			tpl := database.Template{
				Name:        seed.Name,
				Description: seed.Description,
				IsDefault:   seed.IsDefault,
				UserID:      userID,
			}
			for _, p := range seed.Prompts {
				tpl.PlatformTemplates = append(tpl.PlatformTemplates, database.PlatformTemplate{
					Platform: p.Platform,
					Prompt:   p.Prompt,
				})
			}
			if err := tx.Create(&tpl).Error; err != nil {
				return fmt.Errorf("create template %q: %w", seed.Name, err)
			}
		}
		return nil
	})
}
