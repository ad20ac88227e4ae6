// Package bookqasvc provides the BookQA service application.
package bookqasvc

import (
	"fmt"
	"time"

	appopts "github.com/kart-io/bookqa/pkg/options/app"
	bookqaopts "github.com/kart-io/bookqa/pkg/options/bookqa"
	cacheopts "github.com/kart-io/bookqa/pkg/options/cache"
	httpopts "github.com/kart-io/bookqa/pkg/options/http"
	llmopts "github.com/kart-io/bookqa/pkg/options/llm"
	logopts "github.com/kart-io/bookqa/pkg/options/logger"
	milvusopts "github.com/kart-io/bookqa/pkg/options/milvus"
	pgopts "github.com/kart-io/bookqa/pkg/options/postgres"
)

var _ appopts.CliOptions = (*Options)(nil)

// Options contains all BookQA service options.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Milvus contains Milvus vector database configuration.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Postgres contains the relational state store configuration.
	Postgres *pgopts.Options `json:"postgres" mapstructure:"postgres"`

	// Cache contains query result cache configuration.
	Cache *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// BookQA contains the ingestion and query pipeline configuration.
	BookQA *bookqaopts.Options `json:"bookqa" mapstructure:"bookqa"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = ":8082"

	return &Options{
		HTTP:            httpOpts,
		Log:             logopts.NewOptions(),
		Milvus:          milvusopts.NewOptions(),
		Postgres:        pgopts.NewOptions(),
		Cache:           cacheopts.NewOptions(),
		Embedding:       llmopts.NewEmbeddingOptions(),
		Chat:            llmopts.NewChatOptions(),
		BookQA:          bookqaopts.NewOptions(),
		ShutdownTimeout: 10 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *Options) Flags() (fss appopts.NamedFlagSets) {
	o.HTTP.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	o.Milvus.AddFlags(fss.FlagSet("milvus"))
	o.Postgres.AddFlags(fss.FlagSet("postgres"))
	o.Cache.AddFlags(fss.FlagSet("cache"))
	o.Embedding.AddFlags(fss.FlagSet("embedding"), "embedding.")
	o.Chat.AddFlags(fss.FlagSet("chat"), "chat.")
	o.BookQA.AddFlags(fss.FlagSet("bookqa"))

	// misc flags
	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes the options with defaults.
func (o *Options) Complete() error {
	if err := o.HTTP.Complete(); err != nil {
		return err
	}
	if err := o.Log.Complete(); err != nil {
		return err
	}
	if err := o.Cache.Complete(); err != nil {
		return err
	}
	if err := o.Embedding.Complete(); err != nil {
		return err
	}
	if err := o.Chat.Complete(); err != nil {
		return err
	}
	return o.BookQA.Complete()
}

// Validate validates the options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if errs := o.HTTP.Validate(); len(errs) > 0 {
		return joinErrs("http", errs)
	}
	if errs := o.Milvus.Validate(); len(errs) > 0 {
		return joinErrs("milvus", errs)
	}
	if err := o.Postgres.Validate(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := o.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if errs := o.Embedding.Validate(); len(errs) > 0 {
		return joinErrs("embedding", errs)
	}
	if errs := o.Chat.Validate(); len(errs) > 0 {
		return joinErrs("chat", errs)
	}
	if errs := o.BookQA.Validate(); len(errs) > 0 {
		return joinErrs("bookqa", errs)
	}
	return nil
}

// Config builds the runtime configuration from the validated options.
func (o *Options) Config() (*Config, error) {
	return &Config{
		HTTPOptions:      o.HTTP,
		LogOptions:       o.Log,
		MilvusOptions:    o.Milvus,
		PostgresOptions:  o.Postgres,
		CacheOptions:     o.Cache,
		EmbeddingOptions: o.Embedding,
		ChatOptions:      o.Chat,
		BookQAOptions:    o.BookQA,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}

func joinErrs(section string, errs []error) error {
	agg := errs[0]
	for _, err := range errs[1:] {
		agg = fmt.Errorf("%v; %v", agg, err)
	}
	return fmt.Errorf("%s: %w", section, agg)
}
