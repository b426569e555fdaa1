package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind discriminates what an alert rule watches.
type Kind string

const (
	KindHome   Kind = "home"
	KindDevice Kind = "device"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindHome:
		return KindHome, nil
	case KindDevice:
		return KindDevice, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidScope, raw)
	}
}

// Ref names exactly one home or one device.
type Ref struct {
	Kind Kind         `json:"kind"`
	ID   snowflake.ID `json:"id"`
}

func HomeRef(id snowflake.ID) Ref {
	return Ref{Kind: KindHome, ID: id}
}

func DeviceRef(id snowflake.ID) Ref {
	return Ref{Kind: KindDevice, ID: id}
}

func (r Ref) Validate() error {
	if r.Kind != KindHome && r.Kind != KindDevice {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidScope, r.Kind)
	}
	if r.ID == 0 {
		return fmt.Errorf("%w: missing %s id", ErrInvalidScope, r.Kind)
	}
	return nil
}

func (r Ref) IsDevice() bool {
	return r.Kind == KindDevice
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

type Home struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID   snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Name      string       `gorm:"not null" json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Home) TableName() string { return "homes" }

type Device struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	HomeID    snowflake.ID `gorm:"not null;index" json:"home_id"`
	Name      string       `gorm:"not null" json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Device) TableName() string { return "devices" }

// Resolved is the metadata snapshot an evaluation needs for a scope.
type Resolved struct {
	Ref     Ref          `json:"ref"`
	Name    string       `json:"name"`
	HomeID  snowflake.ID `json:"home_id"`
	OwnerID snowflake.ID `json:"owner_id"`
}
