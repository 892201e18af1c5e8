package device

// Wire shapes of the controller's REST control plane. The vendor
// addresses every object by an opaque internal ".id"; names are only a
// lookup attribute, which is why every mutation is preceded by a
// resolve-by-name listing.

// HotspotUser is a captive-portal user record on the controller
type HotspotUser struct {
	ID       string `json:".id,omitempty"`
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	Profile  string `json:"profile,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// SimpleQueue is a per-target bandwidth queue. MaxLimit is the vendor's
// "upload/download" rate pair.
type SimpleQueue struct {
	ID       string `json:".id,omitempty"`
	Name     string `json:"name"`
	Target   string `json:"target,omitempty"`
	MaxLimit string `json:"max-limit,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// WirelessInterface is a radio on the controller
type WirelessInterface struct {
	ID       string `json:".id,omitempty"`
	Name     string `json:"name"`
	SSID     string `json:"ssid,omitempty"`
	Band     string `json:"band,omitempty"`
	Running  bool   `json:"running,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// WirelessClient is one row of the registration table: a station
// currently associated with an interface.
type WirelessClient struct {
	ID        string `json:".id,omitempty"`
	Interface string `json:"interface"`
	MACAddr   string `json:"mac-address"`
	Signal    string `json:"signal-strength,omitempty"`
	Uptime    string `json:"uptime,omitempty"`
	TxRate    string `json:"tx-rate,omitempty"`
	RxRate    string `json:"rx-rate,omitempty"`
}

// Identity is the controller's configured name
type Identity struct {
	Name string `json:"name"`
}

// SystemResources is the controller's resource/health snapshot
type SystemResources struct {
	Uptime      string `json:"uptime,omitempty"`
	Version     string `json:"version,omitempty"`
	BoardName   string `json:"board-name,omitempty"`
	CPULoad     int    `json:"cpu-load,omitempty"`
	FreeMemory  int64  `json:"free-memory,omitempty"`
	TotalMemory int64  `json:"total-memory,omitempty"`
}

// apiError is the controller's error body shape
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// REST paths of the consumed vendor resources
const (
	pathUsers      = "/rest/ip/hotspot/user"
	pathQueues     = "/rest/queue/simple"
	pathInterfaces = "/rest/interface/wireless"
	pathClients    = "/rest/interface/wireless/registration-table"
	pathIdentity   = "/rest/system/identity"
	pathResources  = "/rest/system/resource"
)
