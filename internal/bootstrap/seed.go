// Package bootstrap provides startup-time initialization routines such as
// seeding recipient users for local environments.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/storage"
)

// UserWriter creates or updates recipient users.
type UserWriter interface {
	UpsertUser(ctx context.Context, u storage.User) (bool, error)
}

var _ UserWriter = (*storage.UserRepository)(nil)

// SeedUsers ensures every user exists with the given details. It is
// idempotent and safe on every startup. Users without an ID or email are
// rejected before anything is written.
func SeedUsers(ctx context.Context, store UserWriter, log zerolog.Logger, users ...storage.User) error {
	for i, u := range users {
		if u.ID == "" || u.Email == "" {
			return fmt.Errorf("seed user %d: id and email are required", i)
		}
	}

	var errs []error
	for _, u := range users {
		inserted, err := store.UpsertUser(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if inserted {
			log.Info().Str("user_id", u.ID).Msg("seed user created")
		} else {
			log.Debug().Str("user_id", u.ID).Msg("seed user updated")
		}
	}
	return errors.Join(errs...)
}
