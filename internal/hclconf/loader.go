package hclconf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/tilegate/internal/ctxlog"
	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
)

// Config is the decoded file configuration. Zero values mean "not set"; the
// caller applies its own defaults and flag overrides.
type Config struct {
	Dispatcher DispatcherConfig
	Cache      CacheConfig
	Sessions   []Session
}

// DispatcherConfig mirrors the dispatcher block.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// CacheConfig mirrors the cache block.
type CacheConfig struct {
	Backend    string
	URL        string
	TTL        time.Duration
	MaxEntries int
}

// Session is a session preloaded at startup.
type Session struct {
	ID     string
	Layers []layer.Config
}

// Load reads every .hcl file under paths. Paths that do not exist are
// skipped. A session declared twice is an error.
func Load(ctx context.Context, paths ...string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	cfg := &Config{}
	seen := make(map[string]string)
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if root.Dispatcher != nil {
			if err := applyDispatcher(&cfg.Dispatcher, root.Dispatcher); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		if root.Cache != nil {
			if err := applyCache(&cfg.Cache, root.Cache); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		for _, s := range root.Sessions {
			if prev, dup := seen[s.ID]; dup {
				return nil, fmt.Errorf("session %q in %s already declared in %s", s.ID, file, prev)
			}
			seen[s.ID] = file

			session, err := translateSession(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			cfg.Sessions = append(cfg.Sessions, session)
		}
	}

	logger.Debug("HCL loading complete.", "files", len(files), "sessions", len(cfg.Sessions))
	return cfg, nil
}

// ParseLayer decodes an HCL layer request body into a layer named name.
// Problems in the body are reported as bad requests.
func ParseLayer(name string, src []byte) (layer.Config, error) {
	file, diags := hclsyntax.ParseConfig(src, name+".hcl", hcl.InitialPos)
	if diags.HasErrors() {
		return layer.Config{}, apperrors.BadRequest("invalid HCL layer body: %s", diags.Error())
	}

	var body layerBody
	if diags := gohcl.DecodeBody(file.Body, nil, &body); diags.HasErrors() {
		return layer.Config{}, apperrors.BadRequest("invalid HCL layer body: %s", diags.Error())
	}
	return translateLayer(name, body.Projection, body.MaxCacheAge, body.Provider)
}

func applyDispatcher(dst *DispatcherConfig, b *dispatcherBlock) error {
	if b.Workers != nil {
		dst.Workers = *b.Workers
	}
	if b.QueueSize != nil {
		dst.QueueSize = *b.QueueSize
	}
	if b.Timeout != nil {
		d, err := time.ParseDuration(*b.Timeout)
		if err != nil {
			return fmt.Errorf("invalid dispatcher timeout %q: %w", *b.Timeout, err)
		}
		dst.Timeout = d
	}
	return nil
}

func applyCache(dst *CacheConfig, b *cacheBlock) error {
	if b.Backend != nil {
		dst.Backend = *b.Backend
	}
	if b.URL != nil {
		dst.URL = *b.URL
	}
	if b.MaxEntries != nil {
		dst.MaxEntries = *b.MaxEntries
	}
	if b.TTL != nil {
		d, err := time.ParseDuration(*b.TTL)
		if err != nil {
			return fmt.Errorf("invalid cache ttl %q: %w", *b.TTL, err)
		}
		dst.TTL = d
	}
	return nil
}

func translateSession(s *sessionBlock) (Session, error) {
	out := Session{ID: s.ID}
	names := make(map[string]struct{}, len(s.Layers))
	for _, l := range s.Layers {
		if _, dup := names[l.Name]; dup {
			return Session{}, fmt.Errorf("layer %q declared twice in session %q", l.Name, s.ID)
		}
		names[l.Name] = struct{}{}

		cfg, err := translateLayer(l.Name, l.Projection, l.MaxCacheAge, l.Provider)
		if err != nil {
			return Session{}, fmt.Errorf("session %q: %w", s.ID, err)
		}
		out.Layers = append(out.Layers, cfg)
	}
	return out, nil
}

func translateLayer(name string, projection *string, maxCacheAge *int, p *providerBlock) (layer.Config, error) {
	if p == nil {
		return layer.Config{}, apperrors.BadRequest("layer %q needs a provider block", name)
	}
	params, err := providerParams(p.Body)
	if err != nil {
		return layer.Config{}, apperrors.BadRequest("layer %q provider %q: %v", name, p.Name, err)
	}

	var opts []layer.Option
	if projection != nil {
		opts = append(opts, layer.WithProjection(*projection))
	}
	if maxCacheAge != nil {
		opts = append(opts, layer.WithMaxCacheAge(*maxCacheAge))
	}
	return layer.New(name, layer.ProviderSpec{Name: p.Name, Params: params}, opts...)
}

// providerParams evaluates the attributes of a provider block into plain Go
// values. Only literal expressions are allowed.
func providerParams(body hcl.Body) (map[string]any, error) {
	if body == nil {
		return nil, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	params := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		v, err := paramValue(cty.GetAttrPath(name), val)
		if err != nil {
			return nil, apperrors.BadRequest("invalid provider parameter %s", err)
		}
		params[name] = v
	}
	return params, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}

		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return allFiles, nil
}
