package ml

import (
	"context"
	"encoding/binary"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedService memoizes Service.Predict. Predictions are a pure function of the
// ordered raw vector, so a hit is indistinguishable from a recomputation.
type CachedService struct {
	*Service
	cache *lru.Cache[string, *Prediction]
}

// NewCachedService wraps service with an LRU of size entries.
func NewCachedService(service *Service, size int) (*CachedService, error) {
	cache, err := lru.New[string, *Prediction](size)
	if err != nil {
		return nil, err
	}
	return &CachedService{Service: service, cache: cache}, nil
}

// Predict serves a copy of the cached prediction when the raw vector was seen before.
func (c *CachedService) Predict(ctx context.Context, features FeatureVector) (*Prediction, error) {
	raw, err := Vectorize(c.names, features)
	if err != nil {
		return nil, err
	}
	key := vectorKey(raw)
	if cached, ok := c.cache.Get(key); ok {
		return cached.clone(), nil
	}
	prediction, err := c.Service.Predict(ctx, features)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, prediction.clone())
	return prediction, nil
}

func (c *CachedService) Explain(ctx context.Context, features FeatureVector) (map[string]float64, error) {
	if c.explainer == nil {
		return c.Service.Explain(ctx, features)
	}
	prediction, err := c.Predict(ctx, features)
	if err != nil {
		return nil, err
	}
	return prediction.Attributions, nil
}

// Len is the number of cached predictions.
func (c *CachedService) Len() int {
	return c.cache.Len()
}

// vectorKey is the exact bit pattern of the vector, so distinct vectors never share an entry.
func vectorKey(values []float64) string {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return string(buf)
}
