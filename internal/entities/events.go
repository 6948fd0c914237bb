package entities

// CloseReason tells the lifecycle controller whether a dropped session can be
// resumed with the stored credentials.
type CloseReason int

const (
	CloseNone CloseReason = iota
	CloseTransient
	CloseLoggedOut
)

func (r CloseReason) String() string {
	switch r {
	case CloseTransient:
		return "transient"
	case CloseLoggedOut:
		return "logged_out"
	default:
		return "none"
	}
}

// ConnectionUpdate is emitted by the transport on every session state change.
type ConnectionUpdate struct {
	State            ConnectionStatus
	CloseReason      CloseReason
	PairingChallenge string
}

// InboundMessage is a single message out of a transport delivery batch.
type InboundMessage struct {
	ID           string
	ChatID       string // reply destination
	SenderPhone  string
	ChannelPhone string // phone number of the connected session, if known
	Text         string
	IsFromMe     bool
	IsGroup      bool
	IsBroadcast  bool
}
