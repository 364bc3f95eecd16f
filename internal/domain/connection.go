package domain

// ConnectionState is the lifecycle state of the bidding hub connection. It is
// owned by the connection manager; higher layers observe it but never set it.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)
