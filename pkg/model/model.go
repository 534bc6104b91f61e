package model

import (
	"fmt"
	"time"
)

// BackendKind identifies a supported storage backend.
type BackendKind string

const (
	// BackendSQLite is the embedded single-file store. It has no external
	// dependency and must always be constructible.
	BackendSQLite BackendKind = "sqlite"
	// BackendPostgres is the networked relational store.
	BackendPostgres BackendKind = "postgres"
)

// Valid reports whether k names a supported backend.
func (k BackendKind) Valid() bool {
	return k == BackendSQLite || k == BackendPostgres
}

func (k BackendKind) String() string {
	return string(k)
}

// ParseBackendKind converts a string to a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	k := BackendKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown backend kind: %q (supported: %s, %s)", s, BackendSQLite, BackendPostgres)
	}
	return k, nil
}

// Kinds returns all supported backend kinds.
func Kinds() []BackendKind {
	return []BackendKind{BackendSQLite, BackendPostgres}
}

// User is an account owner. PasswordHash is never exported in snapshots.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Post is a scheduled or published piece of content.
type Post struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Content      string     `json:"content"`
	Platforms    []string   `json:"platforms"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SocialAccount links a user to a third-party platform. Tokens are
// replaced with a redaction sentinel on export and are never restored.
type SocialAccount struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Platform       string     `json:"platform"`
	AccountName    string     `json:"account_name"`
	AccessToken    string     `json:"access_token"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NotificationPreference holds a user's single notification settings record.
type NotificationPreference struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	EmailEnabled    bool      `json:"email_enabled"`
	SlackEnabled    bool      `json:"slack_enabled"`
	SlackWebhookURL string    `json:"slack_webhook_url,omitempty"`
	NotifyOnPublish bool      `json:"notify_on_publish"`
	NotifyOnFailure bool      `json:"notify_on_failure"`
	DigestFrequency string    `json:"digest_frequency"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultNotificationPreference returns the settings a user starts with.
func DefaultNotificationPreference(userID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:          userID,
		EmailEnabled:    true,
		SlackEnabled:    false,
		NotifyOnPublish: true,
		NotifyOnFailure: true,
		DigestFrequency: "daily",
		UpdatedAt:       time.Now().UTC(),
	}
}
