package types

import "strings"

// SubscriptionMode is how a watcher receives events from an RPC endpoint.
type SubscriptionMode string

const (
	// WebSocketMode keeps a log subscription open on a streaming endpoint.
	WebSocketMode SubscriptionMode = "websocket"
	// HTTPPollingMode asks the endpoint for new logs on an interval.
	HTTPPollingMode SubscriptionMode = "http-polling"
)

var streamingSchemes = []string{"ws://", "wss://"}

// GetSubscriptionMode picks the mode from the scheme of rpcURL.
func GetSubscriptionMode(rpcURL string) SubscriptionMode {
	url := strings.ToLower(strings.TrimSpace(rpcURL))
	for _, scheme := range streamingSchemes {
		if strings.HasPrefix(url, scheme) {
			return WebSocketMode
		}
	}
	return HTTPPollingMode
}

// Streaming reports whether events are pushed by the endpoint.
func (m SubscriptionMode) Streaming() bool {
	return m == WebSocketMode
}

func (m SubscriptionMode) String() string {
	return string(m)
}
