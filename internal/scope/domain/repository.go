package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	FindHome(ctx context.Context, id snowflake.ID) (*Home, error)
	FindDevice(ctx context.Context, id snowflake.ID) (*Device, error)
}
