package auth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PermissionChecker answers whether an actor holds a named permission, e.g.
// "asset.retire". Transitions without a required permission never reach the
// checker.
type PermissionChecker interface {
	Allowed(identity Identity, permission string) bool
}

// RolePermissions grants permissions per role from a YAML document:
//
//	roles:
//	  asset_manager:
//	    - asset.activate
//	    - asset.retire
//	  admin:
//	    - "*"
type RolePermissions struct {
	grants map[string]map[string]struct{}
}

type rolePermissionsDoc struct {
	Roles map[string][]string `yaml:"roles"`
}

func LoadRolePermissions(path string) (*RolePermissions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role permissions: %w", err)
	}
	return ParseRolePermissions(raw)
}

func ParseRolePermissions(raw []byte) (*RolePermissions, error) {
	var doc rolePermissionsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode role permissions: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("role permissions document has no roles")
	}
	grants := make(map[string]map[string]struct{}, len(doc.Roles))
	for role, permissions := range doc.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			return nil, fmt.Errorf("role name must not be empty")
		}
		set := make(map[string]struct{}, len(permissions))
		for _, p := range permissions {
			p = strings.TrimSpace(p)
			if p == "" {
				return nil, fmt.Errorf("role %q has an empty permission", role)
			}
			set[p] = struct{}{}
		}
		grants[role] = set
	}
	return &RolePermissions{grants: grants}, nil
}

func (r *RolePermissions) Allowed(identity Identity, permission string) bool {
	if r == nil {
		return false
	}
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return true
	}
	for _, role := range identity.Roles {
		set, ok := r.grants[strings.ToLower(strings.TrimSpace(role))]
		if !ok {
			continue
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[permission]; ok {
			return true
		}
	}
	return false
}

// AllowAll is a PermissionChecker for dev mode and tests.
type AllowAll struct{}

func (AllowAll) Allowed(identity Identity, permission string) bool { return true }
