package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/beachcabana/beach/internal/handshake"
	"github.com/beachcabana/beach/internal/keys"
	"github.com/beachcabana/beach/internal/logger"
	"github.com/beachcabana/beach/internal/transport"
)

func main() {
	root := &cobra.Command{
		Use:   "beach",
		Short: "beach — share a terminal session over a secure peer-to-peer fabric",
	}

	root.AddCommand(keygenCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(shareCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "print a fresh session id and passcode",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := uuid.NewString()
			passcode, err := randomPasscode()
			if err != nil {
				return fmt.Errorf("generate passcode: %w", err)
			}
			mat, err := keys.Derive(sessionID, passcode)
			if err != nil {
				return fmt.Errorf("derive key material: %w", err)
			}
			fmt.Printf("session:  %s\n", sessionID)
			fmt.Printf("passcode: %s\n", passcode)
			fmt.Printf("fingerprint: %x\n", mat.Fingerprint[:8])
			return nil
		},
	}
}

func randomPasscode() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// doctorCmd exercises the handshake and framed transport in-process
// over the io.Pipe-based IPC backing, the same loopback path
// internal/transport's own tests use, without needing a broker or
// network access.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "run a local loopback check of the handshake and transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()

			sessionID := uuid.NewString()
			passcode, err := randomPasscode()
			if err != nil {
				return fmt.Errorf("generate passcode: %w", err)
			}
			mat, err := keys.Derive(sessionID, passcode)
			if err != nil {
				return fmt.Errorf("derive key material: %w", err)
			}

			var handshakeID [16]byte
			if _, err := rand.Read(handshakeID[:]); err != nil {
				return fmt.Errorf("generate handshake id: %w", err)
			}
			_, psk, err := mat.Subkeys(handshakeID)
			if err != nil {
				return fmt.Errorf("derive subkeys: %w", err)
			}
			prologue := handshake.Prologue(handshakeID, "host", "viewer")

			hostConn, viewerConn := pipePair()
			type side struct {
				res handshake.Result
				err error
			}
			hostCh := make(chan side, 1)
			viewerCh := make(chan side, 1)
			go func() {
				res, err := handshake.Run(hostConn, true, psk[:], prologue, "host", "viewer")
				hostCh <- side{res, err}
			}()
			go func() {
				res, err := handshake.Run(viewerConn, false, psk[:], prologue, "viewer", "host")
				viewerCh <- side{res, err}
			}()
			hostSide, viewerSide := <-hostCh, <-viewerCh
			if hostSide.err != nil {
				return fmt.Errorf("host handshake: %w", hostSide.err)
			}
			if viewerSide.err != nil {
				return fmt.Errorf("viewer handshake: %w", viewerSide.err)
			}
			if hostSide.res.Verify != viewerSide.res.Verify {
				return fmt.Errorf("verification code mismatch: %s != %s", hostSide.res.Verify, viewerSide.res.Verify)
			}

			hostTransport, viewerTransport := transport.NewIPCPair()
			defer hostTransport.Close()
			defer viewerTransport.Close()

			sealer, err := transport.NewSealer(hostSide.res.KeyAtoB)
			if err != nil {
				return fmt.Errorf("new sealer: %w", err)
			}
			opener, err := transport.NewSealer(viewerSide.res.KeyAtoB)
			if err != nil {
				return fmt.Errorf("new opener: %w", err)
			}

			plaintext := []byte("beach doctor loopback payload")
			seq, ct, err := sealer.SealNext(transport.DataOrdered, plaintext)
			if err != nil {
				return fmt.Errorf("seal: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := hostTransport.Send(ctx, transport.DataOrdered, transport.PayloadBinary, ct); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			_, frame, err := viewerTransport.Recv(ctx)
			if err != nil {
				return fmt.Errorf("recv: %w", err)
			}
			got, err := opener.Open(transport.DataOrdered, seq, frame.Payload)
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			if string(got) != string(plaintext) {
				return fmt.Errorf("round-trip mismatch: got %q", got)
			}

			fmt.Printf("handshake ok, verify=%s\n", hostSide.res.Verify)
			fmt.Printf("transport ok, %s round-tripped in %s\n", humanize.Bytes(uint64(len(ct))), time.Since(start))
			return nil
		},
	}
}

// pipePair builds a full-duplex io.ReadWriter pair for the handshake,
// which needs a plain stream rather than the framed/lane Transport
// abstraction.
func pipePair() (a, b io.ReadWriter) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &duplexPipe{r: ar, w: aw}, &duplexPipe{r: br, w: bw}
}

type duplexPipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d *duplexPipe) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *duplexPipe) Write(p []byte) (int, error) { return d.w.Write(p) }

func shareCmd() *cobra.Command {
	var brokerURL, sessionID, passcode string

	cmd := &cobra.Command{
		Use:   "share",
		Short: "create a session on a broker and wait for a viewer to join",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			if passcode == "" {
				var err error
				passcode, err = randomPasscode()
				if err != nil {
					return fmt.Errorf("generate passcode: %w", err)
				}
			}
			if _, err := keys.Derive(sessionID, passcode); err != nil {
				return fmt.Errorf("derive key material: %w", err)
			}

			body, err := json.Marshal(struct {
				SessionID string `json:"session_id,omitempty"`
			}{SessionID: sessionID})
			if err != nil {
				return fmt.Errorf("encode create-session request: %w", err)
			}
			httpClient := &http.Client{Timeout: 10 * time.Second}
			resp, err := httpClient.Post(brokerURL+"/sessions", "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("create session: broker returned %s", resp.Status)
			}

			logger.Info("session ready", "session", sessionID)
			fmt.Printf("session:  %s\n", sessionID)
			fmt.Printf("passcode: %s\n", passcode)
			fmt.Println("share the above with your viewer; `beach-view join` with the broker URL, session id, and passcode.")
			fmt.Println("(terminal capture is supplied by the host process embedding this package; see internal/replication/publish.SnapshotSource)")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			reader := bufio.NewReader(os.Stdin)
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				line, err := reader.ReadString('\n')
				if err != nil {
					return nil
				}
				_ = line // fed to a SnapshotSource/DeltaSource by the embedding host; out of scope here
			}
		},
	}

	cmd.Flags().StringVar(&brokerURL, "broker", "https://broker.beach.sh", "broker REST base URL")
	cmd.Flags().StringVar(&sessionID, "session", "", "reuse an existing session id")
	cmd.Flags().StringVar(&passcode, "passcode", "", "reuse an existing passcode")
	return cmd
}
