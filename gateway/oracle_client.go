package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"parchi/entity"
)

// OracleClient reads asset state from the ledger oracle over HTTP. The
// oracle is a soft dependency: callers treat ErrOracleUnavailable as a
// degraded read, not a verdict on the ticket.
type OracleClient struct {
	baseURL string
	client  *http.Client
}

func NewOracleClient(baseURL string, timeout time.Duration) OracleClient {
	if baseURL == "" {
		panic("oracle base URL is empty")
	}

	return OracleClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c OracleClient) FetchAsset(ctx context.Context, assetID string) (entity.AssetSnapshot, error) {
	endpoint := fmt.Sprintf("%s/assets/%s", c.baseURL, url.PathEscape(assetID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return entity.AssetSnapshot{}, fmt.Errorf("failed to build oracle request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return entity.AssetSnapshot{}, fmt.Errorf("oracle request failed: %w: %w", entity.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decoding
	case resp.StatusCode == http.StatusNotFound:
		return entity.AssetSnapshot{}, entity.ErrAssetNotFound
	default:
		return entity.AssetSnapshot{}, fmt.Errorf("unexpected oracle status code %d: %w", resp.StatusCode, entity.ErrOracleUnavailable)
	}

	var snapshot entity.AssetSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return entity.AssetSnapshot{}, fmt.Errorf("failed to decode oracle response: %w: %w", entity.ErrOracleUnavailable, err)
	}

	if snapshot.AssetID == "" {
		snapshot.AssetID = assetID
	}

	return snapshot, nil
}
