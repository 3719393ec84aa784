package users

import "strings"

// ProfilePatch carries only the profile fields a caller wants to change.
// Nil means "leave as is".
type ProfilePatch struct {
	Name    *string
	Address *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return len(p.Updates()) == 0
}

// Updates converts the patch into column/value pairs for a parameterized
// UPDATE. Blank names are dropped; a blank address clears the column.
func (p ProfilePatch) Updates() map[string]any {
	updates := map[string]any{}
	if p.Name != nil {
		if name := strings.TrimSpace(*p.Name); name != "" {
			updates["name"] = name
		}
	}
	if p.Address != nil {
		if addr := strings.TrimSpace(*p.Address); addr != "" {
			updates["address"] = addr
		} else {
			updates["address"] = nil
		}
	}
	return updates
}
