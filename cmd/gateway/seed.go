package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/openlettings/auth-gateway/backend/devbackend"
	"github.com/openlettings/auth-gateway/profiles"
	"github.com/openlettings/auth-gateway/profiles/repofakes"
)

// seedDev registers one account per role so every dashboard is reachable
// out of the box when running against the in-memory backend.
func seedDev(dev *devbackend.Backend, repo *repofakes.FakeProfileRepo, logger zerolog.Logger) {
	accounts := []struct {
		email    string
		password string
		fullName string
		role     profiles.Role
	}{
		{"admin@example.com", "admin-password", "Ada Admin", profiles.RoleAdmin},
		{"landlord@example.com", "landlord-password", "Liam Landlord", profiles.RoleLandlord},
		{"tenant@example.com", "tenant-password", "Tess Tenant", profiles.RoleTenant},
		{"maintenance@example.com", "maintenance-password", "Max Maintenance", profiles.RoleMaintenance},
	}

	now := time.Now().UTC()
	for _, a := range accounts {
		id, err := dev.SeedUser(a.email, a.password)
		if err != nil {
			logger.Err(err).Str("email", a.email).Msg("failed to seed dev user")
			continue
		}
		repo.Put(&profiles.Profile{
			ID:        id,
			Email:     a.email,
			FullName:  a.fullName,
			Role:      a.role,
			CreatedAt: now,
			UpdatedAt: now,
		})
		logger.Info().Str("email", a.email).Str("role", a.role.String()).Msg("seeded dev account")
	}
}
