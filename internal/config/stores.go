package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

// DefaultStoreID is the id of the store built from SHOPIFY_* variables.
const DefaultStoreID = "default_store"

// StoresFile is the on-disk shape of the stores file, in YAML or TOML.
type StoresFile struct {
	Stores map[string]StoreEntry `yaml:"stores" toml:"stores"`
}

// StoreEntry configures one store.
type StoreEntry struct {
	Name      string         `yaml:"name" toml:"name"`
	API       APIEntry       `yaml:"api" toml:"api"`
	Warehouse WarehouseEntry `yaml:"warehouse" toml:"warehouse"`
	PageSize  int            `yaml:"page_size" toml:"page_size"`
}

// APIEntry locates the store's upstream API.
type APIEntry struct {
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	APIVersion  string `yaml:"api_version" toml:"api_version"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
}

// WarehouseEntry names where the store's rows land.
type WarehouseEntry struct {
	Database  string `yaml:"database" toml:"database"`
	Schema    string `yaml:"schema" toml:"schema"`
	BatchSize int    `yaml:"batch_size" toml:"batch_size"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// ExpandEnv replaces ${VAR} and $VAR with values from lookup. Unknown
// variables are left as written and returned in missing.
func ExpandEnv(s string, lookup func(string) (string, bool)) (out string, missing []string) {
	out = envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}
		if value, ok := lookup(name); ok {
			return value
		}
		missing = append(missing, name)
		return match
	})
	return out, missing
}

// ParseStores decodes a stores file. format is "yaml" or "toml".
func ParseStores(data []byte, format string) (*StoresFile, error) {
	var file StoresFile
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("failed to parse stores file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse stores file: %w", err)
		}
	}
	return &file, nil
}

// LoadStores builds the store profiles from the stores file at path and the
// optional environment default store. A missing file is not an error; stores
// in the file replace the default store on id collisions.
func (c *Config) LoadStores(path string, lookup func(string) (string, bool), logger *slog.Logger) ([]model.StoreProfile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	entries := make(map[string]StoreEntry)

	if c.DefaultStore.Enabled() {
		entries[DefaultStoreID] = StoreEntry{
			Name: c.DefaultStore.ShopName,
			API: APIEntry{
				Endpoint:    c.DefaultStore.ShopName,
				APIVersion:  c.DefaultStore.APIVersion,
				AccessToken: c.DefaultStore.AccessToken,
			},
			Warehouse: WarehouseEntry{
				Database: c.Warehouse.Name,
				Schema:   c.DefaultStore.Schema,
			},
		}
	} else {
		logger.Debug("no default store configured", "missing", "SHOPIFY_SHOP_NAME or SHOPIFY_ACCESS_TOKEN")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("stores file not found", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read stores file: %w", err)
		default:
			format := "yaml"
			if strings.EqualFold(filepath.Ext(path), ".toml") {
				format = "toml"
			}
			file, err := ParseStores(data, format)
			if err != nil {
				return nil, err
			}
			for id, entry := range file.Stores {
				entries[id] = entry
			}
			logger.Info("loaded stores file", "path", path, "stores", len(file.Stores))
		}
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	profiles := make([]model.StoreProfile, 0, len(ids))
	for _, id := range ids {
		profile, missing := entries[id].resolve(id, lookup)
		for _, name := range missing {
			logger.Warn("environment variable not found", "store_id", id, "variable", name)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (e StoreEntry) resolve(id string, lookup func(string) (string, bool)) (model.StoreProfile, []string) {
	var missing []string
	expand := func(s string) string {
		out, m := ExpandEnv(s, lookup)
		missing = append(missing, m...)
		return out
	}

	name := expand(e.Name)
	if name == "" {
		name = id
	}

	return model.StoreProfile{
		ID:   id,
		Name: name,
		API: model.APIProfile{
			Endpoint:    expand(e.API.Endpoint),
			APIVersion:  expand(e.API.APIVersion),
			AccessToken: expand(e.API.AccessToken),
		},
		Warehouse: model.WarehouseProfile{
			Database:  expand(e.Warehouse.Database),
			Schema:    expand(e.Warehouse.Schema),
			BatchSize: e.Warehouse.BatchSize,
		},
		PageSize: e.PageSize,
	}, missing
}

// ValidateStore checks a profile before any I/O happens for it.
func ValidateStore(p model.StoreProfile) error {
	check := func(field, value string) error {
		if strings.TrimSpace(value) == "" {
			return &syncerr.ConfigurationError{StoreID: p.ID, Field: field, Msg: "is required"}
		}
		if envVarPattern.MatchString(value) {
			return &syncerr.ConfigurationError{StoreID: p.ID, Field: field, Msg: "references an unset environment variable"}
		}
		return nil
	}

	if err := check("api.endpoint", p.API.Endpoint); err != nil {
		return err
	}
	if err := check("api.access_token", p.API.AccessToken); err != nil {
		return err
	}
	if p.PageSize < 0 || p.PageSize > 250 {
		return &syncerr.ConfigurationError{StoreID: p.ID, Field: "page_size", Msg: "must be between 1 and 250"}
	}
	if p.Warehouse.BatchSize < 0 {
		return &syncerr.ConfigurationError{StoreID: p.ID, Field: "warehouse.batch_size", Msg: "must not be negative"}
	}
	return nil
}
