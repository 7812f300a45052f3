package hclconf

import "github.com/hashicorp/hcl/v2"

// fileRoot is used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Dispatcher *dispatcherBlock `hcl:"dispatcher,block"`
	Cache      *cacheBlock      `hcl:"cache,block"`
	Sessions   []*sessionBlock  `hcl:"session,block"`
	Remain     hcl.Body         `hcl:",remain"`
}

type dispatcherBlock struct {
	Workers   *int    `hcl:"workers,optional"`
	QueueSize *int    `hcl:"queue_size,optional"`
	Timeout   *string `hcl:"timeout,optional"`
}

type cacheBlock struct {
	Backend    *string `hcl:"backend,optional"`
	URL        *string `hcl:"url,optional"`
	TTL        *string `hcl:"ttl,optional"`
	MaxEntries *int    `hcl:"max_entries,optional"`
}

type sessionBlock struct {
	ID     string        `hcl:"id,label"`
	Layers []*layerBlock `hcl:"layer,block"`
}

type layerBlock struct {
	Name        string         `hcl:"name,label"`
	Projection  *string        `hcl:"projection,optional"`
	MaxCacheAge *int           `hcl:"max_cache_age,optional"`
	Provider    *providerBlock `hcl:"provider,block"`
}

// layerBody is the whole document of an HCL layer request body.
type layerBody struct {
	Projection  *string        `hcl:"projection,optional"`
	MaxCacheAge *int           `hcl:"max_cache_age,optional"`
	Provider    *providerBlock `hcl:"provider,block"`
}

type providerBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}
