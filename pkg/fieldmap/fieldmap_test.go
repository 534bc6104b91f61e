package fieldmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSnake(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		fields map[string]any
		want   map[string]any
	}{
		{
			name:   "camelCase keys are normalized",
			table:  TablePosts,
			fields: map[string]any{"userId": "u1", "scheduledFor": nil, "content": "hi"},
			want:   map[string]any{"user_id": "u1", "scheduled_for": nil, "content": "hi"},
		},
		{
			name:   "snake_case keys pass through",
			table:  TableUsers,
			fields: map[string]any{"password_hash": "x", "username": "alice"},
			want:   map[string]any{"password_hash": "x", "username": "alice"},
		},
		{
			name:   "snake_case wins when both spellings present",
			table:  TableAccounts,
			fields: map[string]any{"access_token": "canonical", "accessToken": "legacy"},
			want:   map[string]any{"access_token": "canonical"},
		},
		{
			name:   "unknown table passes everything through",
			table:  "sessions",
			fields: map[string]any{"userId": "u1"},
			want:   map[string]any{"userId": "u1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSnake(tt.table, tt.fields))
		})
	}
}

func TestToCamel(t *testing.T) {
	got := ToCamel(TablePreferences, map[string]any{
		"user_id":           "u1",
		"email_enabled":     true,
		"slack_webhook_url": "https://hooks.example.com",
		"digest_frequency":  "weekly",
	})
	assert.Equal(t, map[string]any{
		"userId":          "u1",
		"emailEnabled":    true,
		"slackWebhookUrl": "https://hooks.example.com",
		"digestFrequency": "weekly",
	}, got)
}

func TestToSnakeToCamelRoundTrip(t *testing.T) {
	original := map[string]any{
		"user_id":          "u1",
		"account_name":     "acct",
		"access_token":     "tok",
		"token_expires_at": nil,
		"platform":         "mastodon",
	}
	assert.Equal(t, original, ToSnake(TableAccounts, ToCamel(TableAccounts, original)))
}

func TestColumnFor(t *testing.T) {
	assert.Equal(t, "userId", ColumnFor(TablePosts, "user_id"))
	assert.Equal(t, "content", ColumnFor(TablePosts, "content"))
	assert.Equal(t, "slackWebhookUrl", ColumnFor(TablePreferences, "slack_webhook_url"))
}

func TestLookup(t *testing.T) {
	fields := map[string]any{"accessToken": "legacy-value", "platform": "bluesky"}

	v, ok := Lookup(TableAccounts, fields, "access_token")
	assert.True(t, ok)
	assert.Equal(t, "legacy-value", v)

	v, ok = Lookup(TableAccounts, fields, "platform")
	assert.True(t, ok)
	assert.Equal(t, "bluesky", v)

	_, ok = Lookup(TableAccounts, fields, "refresh_token")
	assert.False(t, ok)
}
