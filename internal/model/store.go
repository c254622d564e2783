package model

// DefaultPageSize is the upstream page size when a profile does not set one.
const DefaultPageSize = 250

// StoreProfile is the immutable description of one upstream store and where
// its data lands. It is built once from configuration at process start.
type StoreProfile struct {
	ID        string
	Name      string
	API       APIProfile
	Warehouse WarehouseProfile
	PageSize  int
}

// APIProfile locates the upstream API for a store.
type APIProfile struct {
	Endpoint    string
	APIVersion  string
	AccessToken string
}

// WarehouseProfile names the warehouse database and schema for a store.
type WarehouseProfile struct {
	Database  string
	Schema    string
	BatchSize int
}

// EffectivePageSize returns the configured page size or the default.
func (p StoreProfile) EffectivePageSize() int {
	if p.PageSize > 0 {
		return p.PageSize
	}
	return DefaultPageSize
}

// Redacted returns a copy safe to log or serialize.
func (p StoreProfile) Redacted() StoreProfile {
	out := p
	if len(out.API.AccessToken) > 4 {
		out.API.AccessToken = out.API.AccessToken[:4] + "..."
	} else if out.API.AccessToken != "" {
		out.API.AccessToken = "..."
	}
	return out
}
