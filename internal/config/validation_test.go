package config_test

import (
	"errors"
	"testing"

	"scholaria/backend/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	valid := config.Config{
		DBHost:            "localhost",
		DBUser:            "user",
		DBName:            "db",
		VectorWeight:      0.6,
		TextWeight:        0.4,
		ChunkTargetTokens: 512,
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{
			name:    "Valid Config",
			mutate:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name:    "Missing DBHost",
			mutate:  func(c *config.Config) { c.DBHost = "" },
			wantErr: true,
		},
		{
			name:    "Missing DBUser",
			mutate:  func(c *config.Config) { c.DBUser = "" },
			wantErr: true,
		},
		{
			name:    "Missing DBName",
			mutate:  func(c *config.Config) { c.DBName = "" },
			wantErr: true,
		},
		{
			name:    "Negative VectorWeight",
			mutate:  func(c *config.Config) { c.VectorWeight = -0.1 },
			wantErr: true,
		},
		{
			name:    "Negative TextWeight",
			mutate:  func(c *config.Config) { c.TextWeight = -1 },
			wantErr: true,
		},
		{
			name:    "Zero ChunkTargetTokens",
			mutate:  func(c *config.Config) { c.ChunkTargetTokens = 0 },
			wantErr: true,
		},
		{
			name:    "Zero weights are allowed",
			mutate:  func(c *config.Config) { c.VectorWeight, c.TextWeight = 0, 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, config.ErrMissingRequired))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
