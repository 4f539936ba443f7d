package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	// RoleViewer may preview datasets.
	RoleViewer = "viewer"
	// RoleAnalyst may ask questions, which spends generation credits.
	RoleAnalyst = "analyst"
)

type Identity struct {
	Principal string
	Roles     []string
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses comma-separated "key:principal[:role|role]"
// entries. Entries without roles get both viewer and analyst.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:principal[:role|role]", entry)
		}
		key := strings.TrimSpace(parts[0])
		principal := strings.TrimSpace(parts[1])
		if key == "" || principal == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("invalid static key entry %q: duplicate key", entry)
		}

		roles := []string{RoleAnalyst, RoleViewer}
		if len(parts) == 3 {
			roles = roles[:0]
			for _, role := range strings.Split(parts[2], "|") {
				role = strings.TrimSpace(role)
				if role == "" {
					continue
				}
				if role != RoleViewer && role != RoleAnalyst {
					return nil, fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
				}
				roles = append(roles, role)
			}
			if len(roles) == 0 {
				return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
			}
			sort.Strings(roles)
		}
		validator.keys[key] = Identity{Principal: principal, Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}
