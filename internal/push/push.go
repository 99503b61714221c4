package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/village/internal/metrics"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON sent to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Service sends web push notifications to household devices.
type Service struct {
	publicKey  string
	privateKey string
	subject    string
	subs       *store.PushStore
	httpClient webpush.HTTPClient
	logger     *slog.Logger
}

type Option func(*Service)

// WithHTTPClient overrides the client used to reach push services.
func WithHTTPClient(c webpush.HTTPClient) Option {
	return func(s *Service) {
		s.httpClient = c
	}
}

// NewService creates a push service. subject is the VAPID contact, either a
// mailto: address or an https URL.
func NewService(publicKey, privateKey, subject string, subs *store.PushStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
		subs:       subs,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether VAPID keys are set.
func (s *Service) Configured() bool {
	return s.publicKey != "" && s.privateKey != ""
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send delivers payload to a single subscription.
func (s *Service) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subject,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// Notify sends payload to every subscribed device in the household whose
// owner has notifType enabled. A nil userIDs means every member; otherwise
// only the listed users are considered. Expired subscriptions are removed.
// It returns the number of devices reached.
func (s *Service) Notify(ctx context.Context, householdID int64, userIDs []int64, notifType string, payload Payload) int {
	if !s.Configured() {
		return 0
	}

	subs, err := s.subs.ListByHousehold(ctx, householdID)
	if err != nil {
		s.logger.Error("list push subscriptions", "household_id", householdID, "error", err)
		return 0
	}

	var only map[int64]bool
	if userIDs != nil {
		only = make(map[int64]bool, len(userIDs))
		for _, id := range userIDs {
			only[id] = true
		}
	}

	enabled := map[int64]bool{}
	sent := 0
	for i := range subs {
		sub := &subs[i]
		if only != nil && !only[sub.UserID] {
			continue
		}
		on, checked := enabled[sub.UserID]
		if !checked {
			on, err = s.subs.IsPreferenceEnabled(ctx, sub.UserID, householdID, notifType)
			if err != nil {
				s.logger.Error("check notification preference", "user_id", sub.UserID, "error", err)
				on = false
			}
			enabled[sub.UserID] = on
		}
		if !on {
			continue
		}

		switch err := s.Send(ctx, sub, payload); {
		case err == nil:
			sent++
			metrics.NotificationSent("push", notifType, "sent")
		case errors.Is(err, ErrExpired):
			metrics.NotificationSent("push", notifType, "expired")
			if err := s.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				s.logger.Error("delete expired subscription", "error", err)
			}
		default:
			metrics.NotificationSent("push", notifType, "failed")
			s.logger.Warn("send push notification", "type", notifType, "user_id", sub.UserID, "error", err)
		}
	}
	return sent
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
