package ports

import "strings"

// DefaultTenant owns requests authenticated with legacy keys or served with auth disabled.
const DefaultTenant = "default"

// TenantOrDefault trims tenant and falls back to DefaultTenant.
func TenantOrDefault(tenant string) string {
	if t := strings.TrimSpace(tenant); t != "" {
		return t
	}
	return DefaultTenant
}

// TenantCollection names the physical collection holding base for tenant: "<base>_<tenant>".
// Characters outside [A-Za-z0-9_-] in the tenant are replaced so a tenant id can never
// address another collection.
func TenantCollection(base, tenant string) string {
	tenant = TenantOrDefault(tenant)
	var b strings.Builder
	b.Grow(len(base) + 1 + len(tenant))
	b.WriteString(strings.TrimSpace(base))
	b.WriteByte('_')
	for _, r := range tenant {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
