package ingest

import "golang.org/x/sync/errgroup"

// DefaultMaxUploadSize is used when Config.MaxUploadSize is not set
const DefaultMaxUploadSize int64 = 10 << 20

const (
	// Uploads smaller than this are validated on the calling goroutine
	parallelThreshold = 2000
	validateChunkSize = 1000
)

var (
	DefaultEmailAliases = []string{"email", "e-mail", "email address", "e-mail address", "email_address"}
	DefaultNameAliases  = []string{"name", "full name", "contact name", "full_name"}
)

// Config for the ingestion pipeline
type Config struct {
	MaxUploadSize int64
	EmailAliases  []string
	NameAliases   []string
	Workers       int
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		MaxUploadSize: DefaultMaxUploadSize,
		EmailAliases:  DefaultEmailAliases,
		NameAliases:   DefaultNameAliases,
		Workers:       1,
	}
}

// Option adjusts a single Ingest call
type Option func(*options)

type options struct {
	sizeLimit int64
}

// WithSizeLimit overrides the configured upload size limit for one call.
// A non-positive limit keeps the configured one.
func WithSizeLimit(limit int64) Option {
	return func(o *options) {
		o.sizeLimit = limit
	}
}

// Pipeline turns uploaded tables into validated, deduplicated recipients.
// It holds no mutable state and can serve concurrent calls.
type Pipeline struct {
	config    Config
	mapper    *FieldMapper
	validator *Validator
}

// NewPipeline creates a new ingestion pipeline. Zero config fields fall back to defaults.
func NewPipeline(cfg Config) *Pipeline {
	defaults := DefaultConfig()
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaults.MaxUploadSize
	}
	if len(cfg.EmailAliases) == 0 {
		cfg.EmailAliases = defaults.EmailAliases
	}
	if len(cfg.NameAliases) == 0 {
		cfg.NameAliases = defaults.NameAliases
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}

	return &Pipeline{
		config:    cfg,
		mapper:    NewFieldMapper(cfg.EmailAliases, cfg.NameAliases),
		validator: NewValidator(),
	}
}

// MaxUploadSize returns the configured default size limit
func (p *Pipeline) MaxUploadSize() int64 {
	return p.config.MaxUploadSize
}

// Validator returns the address validator used by the pipeline
func (p *Pipeline) Validator() *Validator {
	return p.validator
}

// Ingest parses, validates and deduplicates an upload. A *StructuralError is
// returned when the upload as a whole cannot be interpreted; bad rows never
// fail the call and are listed in the report instead.
func (p *Pipeline) Ingest(data []byte, filename string, opts ...Option) (*Report, error) {
	o := options{sizeLimit: p.config.MaxUploadSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sizeLimit <= 0 {
		o.sizeLimit = p.config.MaxUploadSize
	}

	table, err := ParseTable(data, filename, o.sizeLimit)
	if err != nil {
		return nil, err
	}

	return p.Process(table)
}

// Process runs field mapping, validation and deduplication over a parsed table
func (p *Pipeline) Process(table *Table) (*Report, error) {
	report := newReport(table)

	// Nothing at all was uploaded
	if len(table.Headers) == 0 && len(table.Rows) == 0 {
		return report, nil
	}

	mapping, err := p.mapper.Map(table.Headers)
	if err != nil {
		return nil, err
	}
	report.EmailColumn = mapping.EmailHeader
	report.NameColumn = mapping.NameHeader

	candidates := make([]candidate, len(table.Rows))
	for i, row := range table.Rows {
		candidates[i] = mapping.candidate(table.Headers, row)
	}

	report.assemble(p.validateAll(candidates))
	return report, nil
}

// validateAll validates every candidate. Outcomes are stored by position so
// the result order never depends on scheduling.
func (p *Pipeline) validateAll(candidates []candidate) []outcome {
	outcomes := make([]outcome, len(candidates))

	if p.config.Workers <= 1 || len(candidates) < parallelThreshold {
		for i := range candidates {
			outcomes[i] = p.validator.validate(candidates[i])
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(p.config.Workers)
	for start := 0; start < len(candidates); start += validateChunkSize {
		end := min(start+validateChunkSize, len(candidates))
		g.Go(func() error {
			for i := start; i < end; i++ {
				outcomes[i] = p.validator.validate(candidates[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
