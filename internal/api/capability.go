package api

import (
	"strings"

	"github.com/sokoyetu/buyer-service/internal/domain"
)

// CapabilitySuperadmin gates the admin buyer routes.
const CapabilitySuperadmin = "superadmin"

// CapabilityChecker decides whether a caller holds a named capability.
// Injected so the allow-list source can be swapped or mocked in tests.
type CapabilityChecker interface {
	HasCapability(caller domain.Caller, capability string) bool
}

// AllowListChecker grants the superadmin capability to callers whose uid
// or email appears on a configured allow-list.
type AllowListChecker struct {
	uids   map[string]struct{}
	emails map[string]struct{}
}

// NewAllowListChecker builds a checker from uid and email allow-lists.
// Entries are trimmed; empty entries are ignored.
func NewAllowListChecker(uids, emails []string) *AllowListChecker {
	checker := &AllowListChecker{
		uids:   make(map[string]struct{}, len(uids)),
		emails: make(map[string]struct{}, len(emails)),
	}
	for _, uid := range uids {
		if trimmed := strings.TrimSpace(uid); trimmed != "" {
			checker.uids[trimmed] = struct{}{}
		}
	}
	for _, email := range emails {
		if trimmed := trimEntry(email); trimmed != "" {
			checker.emails[trimmed] = struct{}{}
		}
	}
	return checker
}

func (c *AllowListChecker) HasCapability(caller domain.Caller, capability string) bool {
	if capability != CapabilitySuperadmin {
		return false
	}
	if _, ok := c.uids[strings.TrimSpace(caller.UID)]; ok {
		return true
	}
	if caller.Email == "" {
		return false
	}
	_, ok := c.emails[trimEntry(caller.Email)]
	return ok
}

func trimEntry(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
