package models

import "time"

const (
	RoleSourceSubscription = "subscription"
	RoleSourceManual       = "manual"
)

// RoleAssignment grants a named role to a user from one source. A role is
// effective while at least one of its assignments is active.
type RoleAssignment struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index:ux_role_assignments_user_role_source,unique,priority:1" json:"user_id"`
	Role      string     `gorm:"type:varchar(50);not null;index:ux_role_assignments_user_role_source,unique,priority:2" json:"role"`
	Source    string     `gorm:"type:varchar(32);not null;index:ux_role_assignments_user_role_source,unique,priority:3" json:"source"`
	IsActive  bool       `gorm:"not null;default:true;index" json:"is_active"`
	GrantedAt time.Time  `gorm:"not null" json:"granted_at"`
	RevokedAt *time.Time `gorm:"default:null" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
