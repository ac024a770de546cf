// Package ice resolves the ICE server list handed to browsers and to the
// server-side peer connection.
package ice

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v3"
)

var (
	// ErrNoCredentials is returned when the relay-token credentials are not configured.
	ErrNoCredentials = errors.New("relay credentials not configured")

	// ErrNoServers is returned when the token service answers with an empty list.
	ErrNoServers = errors.New("token service returned no ice servers")

	// ErrUnavailable is returned when the token service could not be reached.
	ErrUnavailable = errors.New("relay token service unavailable")
)

// Server is one STUN or TURN entry.
type Server struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Resolution is the outcome of Service.Servers.
type Resolution struct {
	Servers []Server `json:"ice_servers"`

	// Degraded is set when the public STUN fallback is served.
	Degraded bool `json:"degraded"`

	// Warning carries the cause of a degraded resolution.
	Warning string `json:"warning,omitempty"`
}

// TokenSource fetches short-lived ICE servers from a relay provider.
type TokenSource interface {
	Fetch(ctx context.Context) ([]Server, error)
}

// ToWebRTC converts servers to pion's configuration type.
func ToWebRTC(servers []Server) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		is := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...)}
		if s.Username != "" || s.Credential != "" {
			is.Username = s.Username
			is.Credential = s.Credential
			is.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, is)
	}
	return out
}
