package config

import "os"

// Client defaults.
const (
	DefaultSignalURL = "ws://localhost:5889/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// ClientConfig holds the CLI client's connection settings.
type ClientConfig struct {
	SignalURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// ClientOptions carries CLI flag overrides.
type ClientOptions struct {
	SignalURL  string
	STUNServer string
	TURNServer string
}

// LoadClient resolves each setting as CLI flag, then environment, then default.
func LoadClient(opts ClientOptions) *ClientConfig {
	return &ClientConfig{
		SignalURL:  firstNonEmpty(opts.SignalURL, os.Getenv("SIGNAL_URL"), DefaultSignalURL),
		STUNServer: firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:   os.Getenv("TURN_USERNAME"),
		TURNPass:   os.Getenv("TURN_PASSWORD"),
	}
}

// ICEServerURLs returns the STUN server followed by the TURN server, if any.
func (c *ClientConfig) ICEServerURLs() (stun []string, turn []string) {
	if c.STUNServer != "" {
		stun = []string{c.STUNServer}
	}
	if c.TURNServer != "" {
		turn = []string{c.TURNServer}
	}
	return stun, turn
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
