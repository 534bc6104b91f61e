// Package snapshot defines the portable export format: a versioned,
// checksummed, redacted copy of one user's entire data graph.
//
// The on-disk format is UTF-8 JSON. External backup tooling may read and
// write these files directly as long as it preserves the checksum
// contract: the checksum is a SHA-256 digest over the canonical
// serialization of the data section only, excluding the metadata.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/portagedev/portage/pkg/fieldmap"
	"github.com/portagedev/portage/pkg/model"
)

// FormatVersion is the snapshot schema version this build produces.
const FormatVersion = "1.0.0"

// RedactedToken is the sentinel substituted for credentials and OAuth
// tokens before export. A value equal to this sentinel must never be
// treated as a usable secret: accounts carrying it are skipped on import
// and the connection has to be re-established manually.
const RedactedToken = "[REDACTED]"

// Snapshot is a point-in-time copy of one user's data graph.
type Snapshot struct {
	UserID     string    `json:"userId"`
	ExportDate time.Time `json:"exportDate"`
	Version    string    `json:"version"`
	Data       Data      `json:"data"`
	Metadata   Metadata  `json:"metadata"`
}

// Data is the graph payload. Exactly one user and at most one preference
// record; posts and accounts are zero or more.
type Data struct {
	User                    *model.User                   `json:"user"`
	Posts                   []*model.Post                 `json:"posts"`
	SocialAccounts          []*model.SocialAccount        `json:"socialAccounts"`
	NotificationPreferences *model.NotificationPreference `json:"notificationPreferences"`
}

// Metadata describes the payload without being part of the checksum.
type Metadata struct {
	TotalRecords int    `json:"totalRecords"`
	Checksum     string `json:"checksum"`
}

// RecordCount is the exact number of entities in the data section:
// 1 for the user, one per post and account, 1 for preferences (a default
// preference object is always included, so the count is well-defined).
func (d Data) RecordCount() int {
	return 1 + len(d.Posts) + len(d.SocialAccounts) + 1
}

// ComputeChecksum returns the SHA-256 hex digest over the canonical
// serialization of the data section.
func ComputeChecksum(d Data) (string, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("serialize data for checksum: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the checksum over the data section and compares it
// against the stored one.
func (s *Snapshot) Verify() error {
	sum, err := ComputeChecksum(s.Data)
	if err != nil {
		return err
	}
	if sum != s.Metadata.Checksum {
		return fmt.Errorf("integrity check failed: checksum mismatch")
	}
	return nil
}

// UnmarshalJSON accepts entity payloads in either field-naming
// convention. Legacy exports produced against the SQLite schema carry
// camelCase keys; everything is normalized to the canonical snake_case
// convention before decoding into the typed structs.
func (d *Data) UnmarshalJSON(b []byte) error {
	var raw struct {
		User                    json.RawMessage   `json:"user"`
		Posts                   []json.RawMessage `json:"posts"`
		SocialAccounts          []json.RawMessage `json:"socialAccounts"`
		NotificationPreferences json.RawMessage   `json:"notificationPreferences"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	user, err := decodeEntity[model.User](fieldmap.TableUsers, raw.User)
	if err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	d.User = user

	d.Posts = nil
	for i, rawPost := range raw.Posts {
		p, err := decodeEntity[model.Post](fieldmap.TablePosts, rawPost)
		if err != nil {
			return fmt.Errorf("decode post %d: %w", i, err)
		}
		d.Posts = append(d.Posts, p)
	}

	d.SocialAccounts = nil
	for i, rawAcct := range raw.SocialAccounts {
		a, err := decodeEntity[model.SocialAccount](fieldmap.TableAccounts, rawAcct)
		if err != nil {
			return fmt.Errorf("decode social account %d: %w", i, err)
		}
		d.SocialAccounts = append(d.SocialAccounts, a)
	}

	prefs, err := decodeEntity[model.NotificationPreference](fieldmap.TablePreferences, raw.NotificationPreferences)
	if err != nil {
		return fmt.Errorf("decode notification preferences: %w", err)
	}
	d.NotificationPreferences = prefs
	return nil
}

// decodeEntity normalizes an entity's field names to snake_case, then
// decodes into the typed struct.
func decodeEntity[T any](table string, raw json.RawMessage) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(fieldmap.ToSnake(table, fields))
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(normalized, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Marshal serializes the snapshot as indented JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Parse deserializes a snapshot from JSON.
func Parse(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &s, nil
}

// WriteFile persists the snapshot to path.
func (s *Snapshot) WriteFile(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("serialize snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot from path.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return Parse(data)
}
