package region

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// remoteRegion accepts both field spellings used by ubigeo APIs.
type remoteRegion struct {
	Codigo string `json:"codigo"`
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
	Name   string `json:"name"`
}

// Catalog supplies the region selector options: remote list when the API
// answers, static table otherwise.
type Catalog struct {
	apiURL     string
	httpClient *http.Client
	cache      Cache
	sfg        singleflight.Group // Prevents cache stampede
	log        *zap.Logger
}

// NewCatalog builds a catalog. An empty apiURL serves the static table; a nil
// cache disables caching.
func NewCatalog(apiURL string, httpClient *http.Client, cache Cache, log *zap.Logger) *Catalog {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{apiURL: apiURL, httpClient: httpClient, cache: cache, log: log}
}

func (c *Catalog) Regions(ctx context.Context) []Region {
	if c.apiURL == "" {
		return Regions
	}

	v, err, _ := c.sfg.Do(cacheKey, func() (interface{}, error) {
		if c.cache != nil {
			regions, err := c.cache.Get(ctx)
			if err == nil && len(regions) > 0 {
				return regions, nil
			}
			if err != nil && !errors.Is(err, ErrCacheMiss) {
				c.log.Warn("region cache get failed", zap.Error(err))
			}
		}

		regions, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		if c.cache != nil {
			go func() {
				setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := c.cache.Set(setCtx, regions); err != nil {
					c.log.Warn("region cache set failed", zap.Error(err))
				}
			}()
		}
		return regions, nil
	})
	if err != nil {
		c.log.Warn("region api unavailable, using static regions", zap.Error(err))
		return Regions
	}
	return v.([]Region)
}

func (c *Catalog) fetch(ctx context.Context) ([]Region, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build region request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch regions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch regions: unexpected status %d", resp.StatusCode)
	}

	var remote []remoteRegion
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}

	regions := make([]Region, 0, len(remote))
	for _, r := range remote {
		code := r.Codigo
		if code == "" {
			code = r.ID
		}
		name := r.Nombre
		if name == "" {
			name = r.Name
		}
		if code == "" || name == "" {
			continue
		}
		regions = append(regions, Region{Code: code, Name: name})
	}
	if len(regions) == 0 {
		return nil, errors.New("fetch regions: empty list")
	}
	return regions, nil
}

// Option is one entry of the region selector.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Options builds the selector entries. The selected entry is the one whose
// code or name matches current, or, when current is empty, the region
// guessed from city.
func Options(regions []Region, current, city string) []Option {
	want := current
	if want == "" {
		if name, ok := RegionForCity(city); ok {
			want = name
		}
	}

	opts := make([]Option, 0, len(regions))
	for _, r := range regions {
		opts = append(opts, Option{
			Value:    r.Code,
			Label:    r.Name,
			Selected: want != "" && (r.Code == want || r.Name == want),
		})
	}
	return opts
}
