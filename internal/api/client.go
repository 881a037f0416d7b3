package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// sendTimeout bounds a single outbound peer delivery so a stalled peer
// can never hold up a broadcast fanout (spec §6, §4.3 broadcast).
const sendTimeout = 5 * time.Second

// httpClient is shared across every outbound call; net/http's Transport
// already pools and reuses connections per host.
var httpClient = &http.Client{Timeout: sendTimeout}

// SendMessage POSTs an already-encoded NetworkMessage body to addr's
// peer-message endpoint (spec §6: POST /api/v1/p2p/message). addr is a
// bare host:port, matching PeerInfo.Address.
func SendMessage(ctx context.Context, addr string, payload []byte) error {
	url := fmt.Sprintf("http://%s/api/v1/p2p/message", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s rejected message: status %d", addr, resp.StatusCode)
	}
	return nil
}
