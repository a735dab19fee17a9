package domain

import "time"

type UserID string
type SessionID string

type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierPremium SubscriptionTier = "premium"
	TierPro     SubscriptionTier = "pro"
)

func (t SubscriptionTier) Valid() bool {
	return t == TierFree || t == TierPremium || t == TierPro
}

// UserProfile is owned by the identity provider and read-only to the engine.
type UserProfile struct {
	ID         UserID           `json:"id"`
	Email      string           `json:"email"`
	Username   string           `json:"username"`
	Tier       SubscriptionTier `json:"subscription_status"`
	Credits    int              `json:"credits"`
	MaxStreams int              `json:"max_streams"`
}

// SessionRecord is the persisted identity of one signed-in session.
type SessionRecord struct {
	ID        SessionID   `json:"id"`
	Profile   UserProfile `json:"profile"`
	IssuedAt  time.Time   `json:"issued_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}
