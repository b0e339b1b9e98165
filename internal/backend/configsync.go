package backend

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/aurora-dispenser/aurora-sync/internal/logging"
	"github.com/aurora-dispenser/aurora-sync/internal/schedule"
)

// Link reports whether the network link is usable.
type Link interface {
	Connected() bool
}

// ConfigSync fetches the schedule configuration and applies it to a model.
type ConfigSync struct {
	client  *Client
	pairing *Pairing
	link    Link
}

// NewConfigSync creates a config fetcher. A nil link is treated as always connected.
func NewConfigSync(client *Client, pairing *Pairing, link Link) *ConfigSync {
	return &ConfigSync{client: client, pairing: pairing, link: link}
}

// FetchConfig performs one authenticated fetch. The model is replaced only
// when the backend answers 200 with a parseable object; on any error it is
// left exactly as it was.
func (c *ConfigSync) FetchConfig(ctx context.Context, model *schedule.Model) error {
	if c.link != nil && !c.link.Connected() {
		return NewLinkDownError()
	}

	if err := c.pairing.EnsurePaired(ctx); err != nil {
		return err
	}

	secret, ok := c.pairing.Secret()
	if !ok {
		return NewAuthError("device secret is empty after pairing")
	}

	url := c.client.endpoints.Config()
	header := http.Header{}
	header.Set(HeaderDeviceSecret, secret)

	resp, err := c.client.do(ctx, http.MethodGet, url, nil, header)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return NewProtocolError(resp.StatusCode, fmt.Sprintf("unexpected config status code: %d", resp.StatusCode), url)
	}

	snap, err := parseConfig(resp.Body)
	if err != nil {
		return err
	}

	model.Apply(snap.Version, snap.Containers)

	logging.Info("Schedule applied",
		zap.Int64("schedule_version", snap.Version),
		zap.Int("containers", len(snap.Containers)),
		zap.Int("entries", snap.EntryCount()),
	)
	logging.LogSchedule(snap.Version, snap.Lines())
	return nil
}
