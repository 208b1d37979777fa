package gateway

import (
	"context"
	"sync"

	"parchi/entity"
)

type OracleMock struct {
	mock sync.Mutex

	// Assets is the ledger state served by the mock, keyed by asset ID.
	Assets map[string]entity.AssetSnapshot

	// Unavailable makes every lookup fail as if the oracle was down.
	Unavailable bool

	FetchedAssets []string
}

func (c *OracleMock) FetchAsset(ctx context.Context, assetID string) (entity.AssetSnapshot, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.FetchedAssets = append(c.FetchedAssets, assetID)

	if c.Unavailable {
		return entity.AssetSnapshot{}, entity.ErrOracleUnavailable
	}

	snapshot, ok := c.Assets[assetID]
	if !ok {
		return entity.AssetSnapshot{}, entity.ErrAssetNotFound
	}

	return snapshot, nil
}

func (c *OracleMock) Fetched() []string {
	c.mock.Lock()
	defer c.mock.Unlock()

	return append([]string(nil), c.FetchedAssets...)
}

func (c *OracleMock) SetAsset(snapshot entity.AssetSnapshot) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Assets == nil {
		c.Assets = make(map[string]entity.AssetSnapshot)
	}

	c.Assets[snapshot.AssetID] = snapshot
}
