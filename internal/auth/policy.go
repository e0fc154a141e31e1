package auth

import (
	"strings"
	"sync"
)

// PermissionPolicyPrefix marks policy names that carry a permission code.
const PermissionPolicyPrefix = "Permission:"

// Requirement is a declarative authorization requirement.
type Requirement interface {
	requirement()
}

// PermissionRequirement is met when the caller holds Code.
type PermissionRequirement struct {
	Code string
}

// RoleRequirement is met when the caller holds any of Roles.
type RoleRequirement struct {
	Roles []string
}

func (PermissionRequirement) requirement() {}
func (RoleRequirement) requirement()       {}

// PermissionPolicy returns the policy name for a permission code.
func PermissionPolicy(code string) string {
	return PermissionPolicyPrefix + code
}

// PolicyProvider resolves policy names. Names with the permission prefix are
// synthesized on demand so new permission codes need no registration.
type PolicyProvider struct {
	mu     sync.RWMutex
	static map[string]Requirement
}

func NewPolicyProvider() *PolicyProvider {
	return &PolicyProvider{static: make(map[string]Requirement)}
}

// Register adds or replaces a static policy.
func (p *PolicyProvider) Register(name string, req Requirement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.static[strings.ToUpper(strings.TrimSpace(name))] = req
}

// Policy returns the requirement behind name.
func (p *PolicyProvider) Policy(name string) (Requirement, bool) {
	name = strings.TrimSpace(name)
	if len(name) >= len(PermissionPolicyPrefix) && strings.EqualFold(name[:len(PermissionPolicyPrefix)], PermissionPolicyPrefix) {
		code := strings.TrimSpace(name[len(PermissionPolicyPrefix):])
		if code == "" {
			return nil, false
		}
		return PermissionRequirement{Code: code}, true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	req, ok := p.static[strings.ToUpper(name)]
	return req, ok
}
