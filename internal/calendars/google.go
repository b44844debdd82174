package calendars

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/pkg/config"
	"github.com/marden/bookpool/pkg/crypto"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

var ErrNoCredential = errors.New("no valid calendar credential")

// Google deletes calendar events through the Google Calendar API using the
// host's stored OAuth token.
type Google struct {
	db        *gorm.DB
	logger    *slog.Logger
	encryptor *crypto.Encryptor
	oauth     *oauth2.Config
}

func NewGoogle(db *gorm.DB, logger *slog.Logger, encryptor *crypto.Encryptor, cfg *config.GoogleConfig) *Google {
	return &Google{
		db:        db,
		logger:    logger,
		encryptor: encryptor,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarEventsScope},
		},
	}
}

var _ EventDeleter = (*Google)(nil)

// DeleteEvent removes the event from the host's primary calendar. Events
// already deleted upstream count as success.
func (g *Google) DeleteEvent(ctx context.Context, userID uuid.UUID, externalID string) error {
	cred, token, err := g.loadToken(ctx, userID)
	if err != nil {
		return err
	}

	svc, err := calendar.NewService(ctx,
		option.WithTokenSource(g.oauth.TokenSource(ctx, token)))
	if err != nil {
		return fmt.Errorf("building calendar client: %w", err)
	}

	err = svc.Events.Delete("primary", externalID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case http.StatusNotFound, http.StatusGone:
				return nil
			case http.StatusUnauthorized:
				g.invalidateCredential(ctx, cred)
				return fmt.Errorf("calendar token rejected: %w", err)
			}
		}
		return fmt.Errorf("deleting calendar event %s: %w", externalID, err)
	}

	g.logger.Info("deleted calendar event", "user_id", userID, "external_id", externalID)
	return nil
}

func (g *Google) loadToken(ctx context.Context, userID uuid.UUID) (*models.CalendarCredential, *oauth2.Token, error) {
	var cred models.CalendarCredential
	err := g.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND is_valid = ?", userID, models.CredentialGoogleCalendar, true).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("%w for user %s", ErrNoCredential, userID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading credential: %w", err)
	}

	raw, err := g.encryptor.DecryptString(cred.EncryptedToken)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypting calendar token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, nil, fmt.Errorf("decoding calendar token: %w", err)
	}
	return &cred, &token, nil
}

func (g *Google) invalidateCredential(ctx context.Context, cred *models.CalendarCredential) {
	if err := g.db.WithContext(ctx).Model(cred).Update("is_valid", false).Error; err != nil {
		g.logger.Warn("failed to invalidate credential", "credential_id", cred.ID, "error", err)
	}
}

// StoreCredential encrypts and persists an OAuth token for the user,
// replacing any previous credential of the same type.
func (g *Google) StoreCredential(ctx context.Context, userID uuid.UUID, accountEmail string, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding calendar token: %w", err)
	}
	encrypted, err := g.encryptor.EncryptString(string(raw))
	if err != nil {
		return fmt.Errorf("encrypting calendar token: %w", err)
	}

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND type = ?", userID, models.CredentialGoogleCalendar).
			Delete(&models.CalendarCredential{}).Error; err != nil {
			return err
		}
		cred := models.CalendarCredential{
			UserID:         userID,
			Type:           models.CredentialGoogleCalendar,
			AccountEmail:   accountEmail,
			EncryptedToken: encrypted,
			IsValid:        true,
		}
		return tx.Create(&cred).Error
	})
}
