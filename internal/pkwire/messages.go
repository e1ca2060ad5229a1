package pkwire

// Message is implemented by every decoded frame payload.
type Message interface {
	// MessageType returns the wire type code for this message.
	MessageType() Type
}

// OpenPortRequest asks the pK to bind a port (requested_port == 0 means
// "assign an ephemeral port").
type OpenPortRequest struct {
	RequestID     uint32
	RequestedPort uint64
}

func (OpenPortRequest) MessageType() Type { return TypeOpenPortRequest }

// OpenPortResponse answers an OpenPortRequest. Result == 0 is success.
type OpenPortResponse struct {
	RequestID uint32
	Result    uint8
	Port      uint64
}

func (OpenPortResponse) MessageType() Type { return TypeOpenPortResponse }

// ClosePortRequest asks the pK to release a port the caller's session owns.
type ClosePortRequest struct {
	RequestID uint32
	Port      uint64
}

func (ClosePortRequest) MessageType() Type { return TypeClosePortRequest }

// ClosePortResponse answers a ClosePortRequest. Result == 0 is success.
type ClosePortResponse struct {
	RequestID uint32
	Result    uint8
	Port      uint64
}

func (ClosePortResponse) MessageType() Type { return TypeClosePortResponse }

// SendMessage is a fire-and-forget application payload sent from Source to
// Destination. The pK never acknowledges it.
type SendMessage struct {
	Source      uint64
	Destination uint64
	Payload     []byte
}

func (SendMessage) MessageType() Type { return TypeSendMessage }

// DeliverMessage is what the pK forwards to a destination session after
// routing a SendMessage.
type DeliverMessage struct {
	Source      uint64
	Destination uint64
	Payload     []byte
}

func (DeliverMessage) MessageType() Type { return TypeDeliverMessage }

// ReservedFrame is a frame whose type code (SendChunk or DeliverChunk) is
// reserved for streaming but whose semantics are undefined. The codec
// carries the payload through opaquely; the router drops these after
// logging a warning.
type ReservedFrame struct {
	Kind Type
	Body []byte
}

func (f ReservedFrame) MessageType() Type { return f.Kind }

// Reboot asks the pK to terminate every known client and schedule a fresh
// boot. No payload.
type Reboot struct{}

func (Reboot) MessageType() Type { return TypeReboot }

// Shutdown asks the pK to terminate every known client and stop. No payload.
type Shutdown struct{}

func (Shutdown) MessageType() Type { return TypeShutdown }
