package protocol

// Type discriminates message variants on the wire.
type Type string

// Message type discriminants.
const (
	TypeReady            Type = "ready"
	TypeSetupIntegration Type = "setup_integration"
	TypeSetupComplete    Type = "setup_complete"
	TypeSetupFailed      Type = "setup_failed"
	TypeUnloadIntegration Type = "unload_integration"
	TypeUnloadComplete   Type = "unload_complete"
	TypeTriggerUpdate    Type = "trigger_update"
	TypeUpdateComplete   Type = "update_complete"
	TypeScheduleUpdate   Type = "schedule_update"
	TypeCancelTimer      Type = "cancel_timer"
	TypeHTTPRequest      Type = "http_request"
	TypeHTTPResponse     Type = "http_response"
	TypeStateUpdate      Type = "state_update"
	TypeEntityRegister   Type = "entity_register"
	TypeShutdown         Type = "shutdown"
	TypeAck              Type = "ack"
	TypeError            Type = "error"
)

// ErrorType classifies why an entry setup failed. The runner never infers
// these from error text; they come from the explicit resolution enumeration.
type ErrorType string

// Setup failure classifications.
const (
	ErrIntegrationNotFound ErrorType = "integration_not_found"
	ErrMissingDependency   ErrorType = "missing_dependency"
	ErrImportError         ErrorType = "import_error"
	ErrInvalidIntegration  ErrorType = "invalid_integration"
	ErrSetupFailed         ErrorType = "setup_failed"
	ErrUnknown             ErrorType = "unknown"
)

// DeviceInfo describes the device an entity belongs to.
type DeviceInfo struct {
	Identifiers  [][]string `json:"identifiers"`
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Model        string     `json:"model,omitempty"`
	SWVersion    string     `json:"sw_version,omitempty"`
}

// Message is the tagged union sent over the channel. Fields not used by a
// given variant are absent on the wire; both sides tolerate unknown fields.
type Message struct {
	Type Type `json:"type"`

	// Entry lifecycle.
	Domain    string         `json:"domain,omitempty"`
	EntryID   string         `json:"entry_id,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	Platforms []string       `json:"platforms,omitempty"`

	// Setup failure detail.
	Error          string    `json:"error,omitempty"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	MissingPackage string    `json:"missing_package,omitempty"`

	// Timer registration and firing.
	TimerID         string `json:"timer_id,omitempty"`
	Name            string `json:"name,omitempty"`
	IntervalSeconds uint64 `json:"interval_seconds,omitempty"`
	Success         *bool  `json:"success,omitempty"`

	// Correlated network proxy calls.
	RequestID string            `json:"request_id,omitempty"`
	Method    string            `json:"method,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      ByteBody          `json:"body,omitempty"`
	TimeoutMS uint64            `json:"timeout_ms,omitempty"`
	Status    int               `json:"status,omitempty"`

	// Entity side-channel.
	EntityID     string         `json:"entity_id,omitempty"`
	State        string         `json:"state,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	LastUpdated  string         `json:"last_updated,omitempty"`
	Platform     string         `json:"platform,omitempty"`
	DeviceClass  string         `json:"device_class,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	DeviceInfo   *DeviceInfo    `json:"device_info,omitempty"`

	// Ack / error.
	Text string `json:"message,omitempty"`
}

// Bool returns a pointer suitable for the Success field.
func Bool(v bool) *bool { return &v }

// Ready builds the initial handshake message.
func Ready() *Message {
	return &Message{Type: TypeReady}
}

// SetupComplete reports a successful entry setup and the platforms the
// plugin forwarded entities to, in forwarding order.
func SetupComplete(entryID string, platforms []string) *Message {
	if platforms == nil {
		platforms = []string{}
	}
	return &Message{Type: TypeSetupComplete, EntryID: entryID, Platforms: platforms}
}

// SetupFailed reports a classified entry setup failure.
func SetupFailed(entryID string, kind ErrorType, detail, missingPackage string) *Message {
	return &Message{
		Type:           TypeSetupFailed,
		EntryID:        entryID,
		Error:          detail,
		ErrorType:      kind,
		MissingPackage: missingPackage,
	}
}

// UnloadComplete reports a finished entry unload.
func UnloadComplete(entryID string) *Message {
	return &Message{Type: TypeUnloadComplete, EntryID: entryID}
}

// UpdateComplete reports a coordinator refresh outcome. Failure is reported,
// never escalated.
func UpdateComplete(timerID string, success bool, errText string) *Message {
	return &Message{Type: TypeUpdateComplete, TimerID: timerID, Success: Bool(success), Error: errText}
}

// ScheduleUpdate registers a periodic timer with the host.
func ScheduleUpdate(timerID, entryID, name string, intervalSeconds uint64) *Message {
	return &Message{
		Type:            TypeScheduleUpdate,
		TimerID:         timerID,
		EntryID:         entryID,
		Name:            name,
		IntervalSeconds: intervalSeconds,
	}
}

// CancelTimer asks the host to stop firing a registered timer.
func CancelTimer(timerID string) *Message {
	return &Message{Type: TypeCancelTimer, TimerID: timerID}
}
