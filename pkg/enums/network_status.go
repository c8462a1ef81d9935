package enums

// NetworkStatus records the connectivity observed when a draft was saved.
type NetworkStatus string

const (
	NetworkStatusOffline NetworkStatus = "offline"
	NetworkStatusOnline  NetworkStatus = "online"
)

// IsValid reports whether the value is a known network status.
func (n NetworkStatus) IsValid() bool {
	return n == NetworkStatusOffline || n == NetworkStatusOnline
}
