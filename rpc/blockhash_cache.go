package rpc

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	solwire "github.com/status-im/solwire-go"
)

// blockhashCache memoizes getLatestBlockhash per commitment level so
// hot transaction-building paths do not hammer the endpoint. The TTL
// comes from configuration and should stay well under the ledger's own
// blockhash validity window.
type blockhashCache struct {
	cache *ttlcache.Cache[solwire.Commitment, LatestBlockhash]
}

func newBlockhashCache(ttl time.Duration) *blockhashCache {
	cache := ttlcache.New[solwire.Commitment, LatestBlockhash](
		ttlcache.WithTTL[solwire.Commitment, LatestBlockhash](ttl),
		ttlcache.WithDisableTouchOnHit[solwire.Commitment, LatestBlockhash](),
	)
	go cache.Start()
	return &blockhashCache{cache: cache}
}

func (b *blockhashCache) get(commitment solwire.Commitment) (LatestBlockhash, bool) {
	item := b.cache.Get(commitment)
	if item == nil {
		return LatestBlockhash{}, false
	}
	return item.Value(), true
}

func (b *blockhashCache) put(commitment solwire.Commitment, value LatestBlockhash) {
	b.cache.Set(commitment, value, ttlcache.DefaultTTL)
}

func (b *blockhashCache) stop() {
	b.cache.Stop()
}
