package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/LastGentlman/chandra/internal/providers"
)

// ErrInvalidOption is returned for unknown or malformed processing options.
var ErrInvalidOption = errors.New("invalid option")

// Methods are the serving methods a request may name.
var Methods = []string{providers.MethodVLLM, providers.MethodHF, providers.MethodGemini}

// Option keys accepted from forms and query strings.
const (
	OptMethod                = "method"
	OptIncludeImages         = "include_images"
	OptIncludeHeadersFooters = "include_headers_footers"
	OptMaxOutputTokens       = "max_output_tokens"
	OptBBoxScale             = "bbox_scale"
	OptPageRange             = "page_range"
)

// optionKeys is the allow-list for Set.
var optionKeys = []string{
	OptMethod, OptIncludeImages, OptIncludeHeadersFooters,
	OptMaxOutputTokens, OptBBoxScale, OptPageRange,
}

// Options are the per-request processing options.
type Options struct {
	Method                string `json:"method,omitempty"`
	IncludeImages         bool   `json:"include_images"`
	IncludeHeadersFooters bool   `json:"include_headers_footers"`
	MaxOutputTokens       int    `json:"max_output_tokens,omitempty"`
	BBoxScale             int    `json:"bbox_scale,omitempty"`
	PageRange             string `json:"page_range,omitempty"`
}

// DefaultOptions returns request options seeded from c.
func (c *Config) DefaultOptions() Options {
	return Options{
		Method:          c.DefaultMethod,
		IncludeImages:   true,
		MaxOutputTokens: c.Inference.MaxOutputTokens,
		BBoxScale:       c.Inference.BBoxScale,
	}
}

// IsOption reports whether key is an accepted option name.
func IsOption(key string) bool {
	return slices.Contains(optionKeys, key)
}

// Set assigns one option from its string form.
func (o *Options) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case OptMethod:
		o.Method = strings.ToLower(value)
	case OptIncludeImages:
		o.IncludeImages = ParseBool(value)
	case OptIncludeHeadersFooters:
		o.IncludeHeadersFooters = ParseBool(value)
	case OptMaxOutputTokens:
		n, err := parsePositive(key, value)
		if err != nil {
			return err
		}
		o.MaxOutputTokens = n
	case OptBBoxScale:
		n, err := parsePositive(key, value)
		if err != nil {
			return err
		}
		o.BBoxScale = n
	case OptPageRange:
		o.PageRange = value
	default:
		return fmt.Errorf("%w: unknown option %q", ErrInvalidOption, key)
	}
	return nil
}

// Validate checks the method and numeric bounds.
func (o Options) Validate() error {
	if !slices.Contains(Methods, o.Method) {
		return fmt.Errorf("%w: method must be one of %s, got %q",
			ErrInvalidOption, strings.Join(Methods, ", "), o.Method)
	}
	if o.MaxOutputTokens < 0 {
		return fmt.Errorf("%w: max_output_tokens must be positive", ErrInvalidOption)
	}
	if o.BBoxScale < 0 {
		return fmt.Errorf("%w: bbox_scale must be positive", ErrInvalidOption)
	}
	return nil
}

// ParseBool treats "true" in any case as true and everything else as false.
func ParseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func parsePositive(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidOption, key, value)
	}
	return n, nil
}
