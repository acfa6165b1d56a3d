// Package rtc describes the peer-connection settings handed to clients. The
// server never terminates media itself.
package rtc

import (
	"fmt"

	"github.com/dkeye/Proctor/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{DefaultSTUN},
			},
		},
	}
}

// Configuration converts the configured servers, rejecting URLs that are not
// stun:, stuns:, turn: or turns:. An empty list yields the default STUN server.
func Configuration(servers []config.ICEServer) (webrtc.Configuration, error) {
	if len(servers) == 0 {
		return DefaultWebRTCConfig(), nil
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		if len(s.URLs) == 0 {
			return webrtc.Configuration{}, fmt.Errorf("ice server %d: no urls", i)
		}
		turn := false
		for _, raw := range s.URLs {
			u, err := stun.ParseURI(raw)
			if err != nil {
				return webrtc.Configuration{}, fmt.Errorf("ice server %d: %q: %w", i, raw, err)
			}
			if u.Scheme == stun.SchemeTypeTURN || u.Scheme == stun.SchemeTypeTURNS {
				turn = true
			}
		}
		if turn && (s.Username == "" || s.Credential == "") {
			return webrtc.Configuration{}, fmt.Errorf("ice server %d: turn requires username and credential", i)
		}

		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	log.Info().Str("module", "adapters.rtc").Int("servers", len(out)).Msg("ice configuration loaded")
	return webrtc.Configuration{ICEServers: out}, nil
}
