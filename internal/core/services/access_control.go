package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/theblitlabs/parity-stake/internal/core/config"
	"github.com/theblitlabs/parity-stake/internal/core/ports"
)

type roleMembers struct {
	everyone bool
	accounts map[common.Address]struct{}
}

// StaticAccessControl grants roles from a fixed table loaded at startup.
type StaticAccessControl struct {
	roles map[ports.Role]roleMembers
}

// NewStaticAccessControl parses the configured role allow-lists.
func NewStaticAccessControl(cfg config.RolesConfig) (*StaticAccessControl, error) {
	ac := &StaticAccessControl{roles: make(map[ports.Role]roleMembers)}
	for role, list := range map[ports.Role]string{
		ports.RoleWorker:     cfg.Workers,
		ports.RoleSlasher:    cfg.Slashers,
		ports.RoleJobManager: cfg.JobManagers,
	} {
		accounts, everyone, err := config.Members(list)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s role: %w", role, err)
		}
		ac.Grant(role, accounts...)
		if everyone {
			m := ac.roles[role]
			m.everyone = true
			ac.roles[role] = m
		}
	}
	return ac, nil
}

// Grant is meant for setup only; it is not safe to call concurrently with
// HasRole.
func (ac *StaticAccessControl) Grant(role ports.Role, accounts ...common.Address) {
	m := ac.roles[role]
	if m.accounts == nil {
		m.accounts = make(map[common.Address]struct{})
	}
	for _, a := range accounts {
		m.accounts[a] = struct{}{}
	}
	ac.roles[role] = m
}

func (ac *StaticAccessControl) HasRole(ctx context.Context, account common.Address, role ports.Role) (bool, error) {
	m, ok := ac.roles[role]
	if !ok {
		return false, nil
	}
	if m.everyone {
		return true, nil
	}
	_, ok = m.accounts[account]
	return ok, nil
}
