// Package bootstrap turns configuration into the components shared by the
// cohort binaries.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/synaptica-ai/registercohort/pkg/analytics/cohort"
	"github.com/synaptica-ai/registercohort/pkg/cache"
	"github.com/synaptica-ai/registercohort/pkg/common/config"
	"github.com/synaptica-ai/registercohort/pkg/common/database"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/linkage"
	"github.com/synaptica-ai/registercohort/pkg/storage"
	"github.com/synaptica-ai/registercohort/pkg/tables"
	"github.com/synaptica-ai/registercohort/pkg/terminology"
	"github.com/synaptica-ai/registercohort/pkg/validation"
	"gorm.io/gorm"
)

type Components struct {
	Config    *config.Config
	Pipeline  config.Pipeline
	Provider  tables.Provider
	Lookup    terminology.Lookup
	Memo      *cache.Memo
	Windows   cohort.Windows
	Matcher   *linkage.Matcher
	Parquet   *storage.ParquetWriter
	Warehouse *storage.Warehouse
	DB        *gorm.DB
}

// LoadConfig reads the environment and layers the pipeline file over it.
func LoadConfig(pipelineFile string) (*config.Config, config.Pipeline, error) {
	cfg := config.Load()
	if pipelineFile != "" {
		cfg.PipelineFile = pipelineFile
	}
	p, err := config.LoadPipeline(cfg.PipelineFile)
	if err != nil {
		return nil, p, err
	}
	p.Apply(cfg)
	return cfg, p, nil
}

func Load(ctx context.Context, cfg *config.Config, p config.Pipeline) (*Components, error) {
	c := &Components{Config: cfg, Pipeline: p}

	windows, err := cohort.WindowsFromSpec(p.Windows)
	if err != nil {
		return nil, err
	}
	c.Windows = windows

	policy, err := linkage.ParsePolicy(cfg.MatchPolicy)
	if err != nil {
		return nil, err
	}
	c.Matcher = linkage.NewMatcher(policy, cfg.MatchRatio)

	if c.Lookup, err = LoadLookup(cfg, p); err != nil {
		return nil, err
	}
	if c.Provider, err = c.provider(); err != nil {
		return nil, err
	}
	if c.Memo, err = c.memo(ctx); err != nil {
		return nil, err
	}

	c.Parquet = storage.NewParquetWriter(cfg.OutputDir)
	if cfg.PersistToDB {
		db, err := c.database()
		if err != nil {
			return nil, err
		}
		c.Warehouse = storage.NewWarehouse(db)
		if err := c.Warehouse.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate cohort warehouse: %w", err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"tables":       cfg.TableSource,
		"cache":        cfg.CacheBackend,
		"keying":       string(c.Memo.Keying()),
		"match_policy": string(policy),
		"codes":        c.Lookup.Len(),
		"output_dir":   cfg.OutputDir,
	}).Info("cohort components ready")
	return c, nil
}

// LoadLookup prefers the inline code list of the pipeline file and falls
// back to the code file.
func LoadLookup(cfg *config.Config, p config.Pipeline) (terminology.Lookup, error) {
	if len(p.SevereChronicCodes) > 0 {
		entries := make([]terminology.Entry, 0, len(p.SevereChronicCodes))
		for _, e := range p.SevereChronicCodes {
			entries = append(entries, terminology.Entry{Label: e.Label, Codes: e.Codes})
		}
		return terminology.Expand(entries), nil
	}
	lookup, err := terminology.LoadFile(cfg.ICD10CodesFile)
	if err != nil {
		return terminology.Lookup{}, fmt.Errorf("load code list %s: %w", cfg.ICD10CodesFile, err)
	}
	return lookup, nil
}

func (c *Components) provider() (tables.Provider, error) {
	switch strings.ToLower(c.Config.TableSource) {
	case "", "parquet":
		return tables.NewParquetSource(c.Config.TablesDir), nil
	case "postgres":
		db, err := c.database()
		if err != nil {
			return nil, err
		}
		return tables.NewPostgresSource(db), nil
	default:
		return nil, fmt.Errorf("unknown table source %q", c.Config.TableSource)
	}
}

func (c *Components) memo(ctx context.Context) (*cache.Memo, error) {
	keying, err := cache.ParseKeying(c.Config.CacheKeying)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(c.Config.CacheBackend) {
	case "", "file":
		store, err := cache.NewFileStore(c.Config.CacheDir)
		if err != nil {
			return nil, err
		}
		return cache.NewMemo(store, keying), nil
	case "redis":
		client, err := database.GetRedis(ctx, c.Config)
		if err != nil {
			return nil, err
		}
		return cache.NewMemo(cache.NewRedisStore(client, "", c.Config.CacheTTL), keying), nil
	case "memory":
		return cache.NewMemo(cache.NewMemoryStore(c.Config.CacheTTL), keying), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Config.CacheBackend)
	}
}

func (c *Components) database() (*gorm.DB, error) {
	if c.DB != nil {
		return c.DB, nil
	}
	db, err := database.GetPostgres(c.Config)
	if err != nil {
		return nil, err
	}
	c.DB = db
	return db, nil
}

func (c *Components) Sinks() []cohort.Sink {
	sinks := []cohort.Sink{c.Parquet}
	if c.Warehouse != nil {
		sinks = append(sinks, c.Warehouse)
	}
	return sinks
}

func (c *Components) BuilderOptions() []cohort.Option {
	return []cohort.Option{
		cohort.WithMemo(c.Memo),
		cohort.WithMatcher(c.Matcher),
		cohort.WithWindows(c.Windows),
		cohort.WithSinks(c.Sinks()...),
	}
}

func (c *Components) Job() cohort.Job {
	return cohort.NewJob(cohort.JobConfig{
		Provider:  c.Provider,
		Lookup:    c.Lookup,
		Validator: validation.NewValidator(),
		Options:   c.BuilderOptions(),
		Income:    c.Parquet,
	})
}
