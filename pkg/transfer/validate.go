package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/portagedev/portage/pkg/storage"
)

// ValidateMigration compares the user's data graph on two backends. It
// never mutates either side. User identity fields must match and the
// post and social-account counts must be equal; each discrepancy is
// reported as a named error. A user missing on either side is a hard
// failure distinct from a count mismatch, and a backend read failure is
// reported as such rather than as a missing user.
func ValidateMigration(ctx context.Context, userID string, source, target storage.Adapter) []string {
	sourceUser, err := source.Users().GetByID(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return []string{fmt.Sprintf("validation: user %s not found on source (%s)", userID, source.Kind())}
	}
	if err != nil {
		return []string{fmt.Sprintf("validation: read user on source (%s): %v", source.Kind(), err)}
	}
	targetUser, err := target.Users().GetByID(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return []string{fmt.Sprintf("validation: user %s not found on target (%s)", userID, target.Kind())}
	}
	if err != nil {
		return []string{fmt.Sprintf("validation: read user on target (%s): %v", target.Kind(), err)}
	}

	var errs []string
	if sourceUser.Username != targetUser.Username {
		errs = append(errs, fmt.Sprintf("username: source=%q target=%q", sourceUser.Username, targetUser.Username))
	}
	if sourceUser.Email != targetUser.Email {
		errs = append(errs, fmt.Sprintf("email: source=%q target=%q", sourceUser.Email, targetUser.Email))
	}

	sourcePosts, err := source.Posts().ListByUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Sprintf("validation: list source posts: %v", err))
	}
	targetPosts, err := target.Posts().ListByUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Sprintf("validation: list target posts: %v", err))
	}
	if len(sourcePosts) != len(targetPosts) {
		errs = append(errs, fmt.Sprintf("posts: source=%d target=%d", len(sourcePosts), len(targetPosts)))
	}

	sourceAccounts, err := source.SocialAccounts().ListByUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Sprintf("validation: list source social accounts: %v", err))
	}
	targetAccounts, err := target.SocialAccounts().ListByUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Sprintf("validation: list target social accounts: %v", err))
	}
	if len(sourceAccounts) != len(targetAccounts) {
		errs = append(errs, fmt.Sprintf("social accounts: source=%d target=%d", len(sourceAccounts), len(targetAccounts)))
	}

	return errs
}
