package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/beachcabana/beach/internal/broker"
	"github.com/beachcabana/beach/internal/keys"
	"github.com/beachcabana/beach/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "beach-view",
		Short: "beach-view — join and render a shared terminal session",
	}
	root.AddCommand(joinCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func joinCmd() *cobra.Command {
	var brokerURL, sessionID, passcode string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "join a session by id and passcode",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			if passcode == "" {
				return fmt.Errorf("--passcode is required")
			}

			mat, err := keys.Derive(sessionID, passcode)
			if err != nil {
				return fmt.Errorf("derive key material: %w", err)
			}
			_ = mat // per-handshake subkeys are derived once the host's join/offer carries a handshake id

			httpClient := &http.Client{Timeout: 10 * time.Second}
			checkURL := brokerURL + "/sessions/" + sessionID
			resp, err := httpClient.Get(checkURL)
			if err != nil {
				return fmt.Errorf("check session: %w", err)
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("session %s not found (expired or never created)", sessionID)
			}

			wsURL := toWS(brokerURL) + "/ws/" + sessionID
			c := &broker.Client{
				URL:        wsURL,
				SessionID:  sessionID,
				PeerID:     uuid.NewString(),
				Role:       broker.RoleClient,
				Passphrase: passcode,
				Transports: []broker.Transport{broker.TransportWebRTC, broker.TransportDirect},
				Preferred:  broker.TransportWebRTC,
			}
			c.OnJoined = func(msg broker.JoinSuccessMsg) {
				logger.Info("joined session", "session", msg.SessionID, "peers", len(msg.Peers))
			}
			c.OnPeerJoined = func(p broker.Peer) {
				logger.Info("peer joined", "peer", p.PeerID, "role", p.Role)
			}
			c.OnSignal = func(fromPeer string, signal json.RawMessage) {
				// A real viewer would open the sealed envelope with the
				// subkeys derived above and feed it to webrtcsig/handshake;
				// rendering the replica grid is the embedding host's job.
				logger.Debug("signal received", "from", fromPeer, "bytes", len(signal))
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return c.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&brokerURL, "broker", "https://broker.beach.sh", "broker REST base URL")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&passcode, "passcode", "", "session passcode")
	return cmd
}

func toWS(httpURL string) string {
	switch {
	case len(httpURL) >= 8 && httpURL[:8] == "https://":
		return "wss://" + httpURL[8:]
	case len(httpURL) >= 7 && httpURL[:7] == "http://":
		return "ws://" + httpURL[7:]
	default:
		return httpURL
	}
}
