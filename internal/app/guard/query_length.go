package guard

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

func init() {
	Register("query_length", func() Guard { return NewQueryLengthGuard() })
}

// QueryLengthConfig represents the configuration for QueryLengthGuard.
type QueryLengthConfig struct {
	MaxLength int `yaml:"max_length" mapstructure:"max_length" default:"500" validate:"gte=1"`
}

// QueryLengthGuard rejects empty queries and queries over the length limit.
type QueryLengthGuard struct {
	config *QueryLengthConfig
}

// NewQueryLengthGuard creates a query length guard with default settings.
func NewQueryLengthGuard() *QueryLengthGuard {
	g := &QueryLengthGuard{}
	// Defaults are always valid.
	_ = g.ValidateConfig(map[string]any{})
	return g
}

func (g *QueryLengthGuard) Name() string {
	return "query_length"
}

func (g *QueryLengthGuard) ReturnCodes() []string {
	return []string{"empty_query", "query_too_long"}
}

func (g *QueryLengthGuard) ValidateConfig(settings map[string]any) error {
	var config QueryLengthConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	g.config = &config
	return nil
}

func (g *QueryLengthGuard) Check(query string) Result {
	if query == "" {
		return Reject("empty_query")
	}
	if len(query) > g.config.MaxLength {
		return Reject("query_too_long")
	}
	return Accept(query)
}
