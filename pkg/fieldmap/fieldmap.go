// Package fieldmap bridges the column-naming mismatch between backends.
//
// The PostgreSQL schema uses snake_case column names while the SQLite
// schema, inherited from the original desktop build, uses camelCase.
// Every payload that crosses a backend boundary (snapshot import, live
// replication) is normalized here, through declared per-table mapping
// tables, rather than with ad hoc fallbacks scattered around the engine.
package fieldmap

// Tables the engine replicates and imports. These are the canonical
// (snake_case) table names used in change events and snapshots.
const (
	TableUsers       = "users"
	TablePosts       = "posts"
	TableAccounts    = "social_accounts"
	TablePreferences = "notification_preferences"
)

// snake -> camel, per table. Keys absent from a table's map have the same
// spelling in both conventions and pass through unchanged.
var (
	UserFields = map[string]string{
		"password_hash": "passwordHash",
		"created_at":    "createdAt",
		"updated_at":    "updatedAt",
	}

	PostFields = map[string]string{
		"user_id":       "userId",
		"scheduled_for": "scheduledFor",
		"published_at":  "publishedAt",
		"created_at":    "createdAt",
		"updated_at":    "updatedAt",
	}

	AccountFields = map[string]string{
		"user_id":          "userId",
		"account_name":     "accountName",
		"access_token":     "accessToken",
		"refresh_token":    "refreshToken",
		"token_expires_at": "tokenExpiresAt",
		"created_at":       "createdAt",
	}

	PreferenceFields = map[string]string{
		"user_id":           "userId",
		"email_enabled":     "emailEnabled",
		"slack_enabled":     "slackEnabled",
		"slack_webhook_url": "slackWebhookUrl",
		"notify_on_publish": "notifyOnPublish",
		"notify_on_failure": "notifyOnFailure",
		"digest_frequency":  "digestFrequency",
		"updated_at":        "updatedAt",
	}
)

// tableFields returns the snake->camel mapping for a table, or nil for
// tables with no renamed columns.
func tableFields(table string) map[string]string {
	switch table {
	case TableUsers:
		return UserFields
	case TablePosts:
		return PostFields
	case TableAccounts:
		return AccountFields
	case TablePreferences:
		return PreferenceFields
	default:
		return nil
	}
}

// ToSnake normalizes a field map to the canonical snake_case convention.
// Keys already in snake_case, and keys unknown to the table's mapping,
// are passed through unchanged. When both spellings of a field are
// present the snake_case one wins.
func ToSnake(table string, fields map[string]any) map[string]any {
	mapping := tableFields(table)
	out := make(map[string]any, len(fields))
	camelToSnake := make(map[string]string, len(mapping))
	for snake, camel := range mapping {
		camelToSnake[camel] = snake
	}
	for k, v := range fields {
		if snake, ok := camelToSnake[k]; ok {
			if _, exists := fields[snake]; exists {
				continue
			}
			out[snake] = v
			continue
		}
		out[k] = v
	}
	return out
}

// ToCamel converts a canonical snake_case field map to the camelCase
// convention the SQLite schema uses.
func ToCamel(table string, fields map[string]any) map[string]any {
	mapping := tableFields(table)
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if camel, ok := mapping[k]; ok {
			out[camel] = v
			continue
		}
		out[k] = v
	}
	return out
}

// ColumnFor returns the column name for a canonical snake_case field on
// the given table under the camelCase convention.
func ColumnFor(table, snakeKey string) string {
	if camel, ok := tableFields(table)[snakeKey]; ok {
		return camel
	}
	return snakeKey
}

// Lookup reads a field by its canonical snake_case key, falling back to
// the alternate-convention spelling when the canonical key is absent.
func Lookup(table string, fields map[string]any, snakeKey string) (any, bool) {
	if v, ok := fields[snakeKey]; ok {
		return v, true
	}
	if camel, ok := tableFields(table)[snakeKey]; ok {
		if v, ok := fields[camel]; ok {
			return v, true
		}
	}
	return nil, false
}
