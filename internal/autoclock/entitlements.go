package autoclock

import (
	"strings"
)

// StaticEntitlements is a fixed entitlement set, configured at startup from
// the subscription state the purchase flow last reported.
type StaticEntitlements struct {
	active map[string]struct{}
}

// NewStaticEntitlements parses a comma-separated entitlement list.
func NewStaticEntitlements(list string) *StaticEntitlements {
	active := make(map[string]struct{})

	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			active[id] = struct{}{}
		}
	}

	return &StaticEntitlements{active: active}
}

func (e *StaticEntitlements) HasEntitlement(id string) bool {
	_, ok := e.active[id]
	return ok
}
