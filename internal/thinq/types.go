package thinq

// Message represents a base WebSocket frame to/from the cloud gateway
type Message struct {
	ID      int            `json:"id,omitempty"`
	Type    string         `json:"type"`
	Success *bool          `json:"success,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// Error represents an error response from the gateway
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage represents the authentication request
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// StatusRequest asks for the current raw status document of one device
type StatusRequest struct {
	ID            int    `json:"id"`
	Type          string `json:"type"`
	DeviceID      string `json:"device_id"`
	Category      string `json:"category"`
	AuxIntervalV1 int    `json:"aux_poll_interval_v1"`
	AuxIntervalV2 int    `json:"aux_poll_interval_v2"`
	RichQuery     bool   `json:"rich_query"`
}

// CommandRequest dispatches one control command to a device
type CommandRequest struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Group    string `json:"group"`
	Command  string `json:"command,omitempty"`
	Value    any    `json:"value,omitempty"`
}
