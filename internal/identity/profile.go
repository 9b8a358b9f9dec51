package identity

import (
	"fmt"
	"strings"
)

// Email is the local key for the identity. Bare usernames are kept as is.
func (id *Identity) Email() string {
	return strings.ToLower(id.Username)
}

// DisplayName picks the first non-empty of displayName, name and cn, and
// falls back to the local part of the username.
func (id *Identity) DisplayName() string {
	if name := id.infoString("displayName", "name", "cn"); name != "" {
		return name
	}
	local, _, _ := strings.Cut(id.Username, "@")
	return local
}

// EmployeeID returns employeeID or matricula when present.
func (id *Identity) EmployeeID() string {
	return id.infoString("employeeID", "matricula")
}

func (id *Identity) infoString(keys ...string) string {
	for _, k := range keys {
		v, ok := id.Info[k]
		if !ok || v == nil {
			continue
		}
		// LDAP attributes often come back as single-element lists.
		if list, ok := v.([]interface{}); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}
