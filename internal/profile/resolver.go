// Package profile resolves user ids to display names for message and
// presence hydration. Resolution failures degrade to "unknown" rather
// than failing the surrounding fetch.
package profile

import (
	"go.uber.org/zap"

	"github.com/CandidSocials/candidWebApp/internal/store"
)

// Unknown is the fallback display name.
const Unknown = "unknown"

// Resolver looks display names up in the profiles table.
type Resolver struct {
	db     *store.DB
	logger *zap.Logger
}

// NewResolver creates a resolver over db. logger may be nil.
func NewResolver(db *store.DB, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{db: db, logger: logger}
}

// DisplayName returns the stored name for userID, or Unknown when the
// profile is missing or the lookup fails.
func (r *Resolver) DisplayName(userID string) string {
	name, err := r.db.DisplayName(userID)
	if err != nil {
		r.logger.Warn("display name lookup failed", zap.String("user_id", userID), zap.Error(err))
		return Unknown
	}
	if name == "" {
		return Unknown
	}
	return name
}
