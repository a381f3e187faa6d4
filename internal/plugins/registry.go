// Package plugins holds the catalog of capture readers and transaction writers
// that can be selected by name in the configuration.
package plugins

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// Registry errors.
var (
	ErrUnknownPlugin   = errors.New("unknown plugin")
	ErrDuplicatePlugin = errors.New("plugin already registered")
)

// Plugin describes a selectable component.
type Plugin interface {
	// Name is the value used in EXPENSOR_READER / EXPENSOR_WRITER.
	Name() string
	Description() string
	// RequiredScopes lists the Google OAuth scopes the component needs, if any.
	RequiredScopes() []string
	// ConfigSchema is a JSON schema of the plugin's config document.
	ConfigSchema() map[string]any
}

// ReaderPlugin builds capture readers.
type ReaderPlugin interface {
	Plugin
	NewReader(httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Reader, error)
}

// WriterPlugin builds transaction writers.
type WriterPlugin interface {
	Plugin
	NewWriter(httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeConfig unmarshals a plugin config into v and validates its `validate` tags.
// An empty document leaves v at its defaults.
func DecodeConfig(data json.RawMessage, v any) error {
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshaling config: %w", err)
		}
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

type catalog[P Plugin] struct {
	kind    string
	plugins map[string]P
}

func newCatalog[P Plugin](kind string) catalog[P] {
	return catalog[P]{kind: kind, plugins: make(map[string]P)}
}

func (c catalog[P]) add(p P) error {
	if _, ok := c.plugins[p.Name()]; ok {
		return fmt.Errorf("%s %q: %w", c.kind, p.Name(), ErrDuplicatePlugin)
	}
	c.plugins[p.Name()] = p
	return nil
}

func (c catalog[P]) get(name string) (P, error) {
	p, ok := c.plugins[name]
	if !ok {
		return p, fmt.Errorf("%s %q: %w", c.kind, name, ErrUnknownPlugin)
	}
	return p, nil
}

func (c catalog[P]) list() []P {
	out := make([]P, 0, len(c.plugins))
	for _, p := range c.plugins {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b P) int { return cmp.Compare(a.Name(), b.Name()) })
	return out
}

// Registry manages the available reader and writer plugins.
// It is populated at startup and read-only afterwards.
type Registry struct {
	readers catalog[ReaderPlugin]
	writers catalog[WriterPlugin]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: newCatalog[ReaderPlugin]("reader"),
		writers: newCatalog[WriterPlugin]("writer"),
	}
}

// RegisterReader adds a reader plugin. Names must be unique.
func (r *Registry) RegisterReader(p ReaderPlugin) error { return r.readers.add(p) }

// RegisterWriter adds a writer plugin. Names must be unique.
func (r *Registry) RegisterWriter(p WriterPlugin) error { return r.writers.add(p) }

// Reader returns the named reader plugin.
func (r *Registry) Reader(name string) (ReaderPlugin, error) { return r.readers.get(name) }

// Writer returns the named writer plugin.
func (r *Registry) Writer(name string) (WriterPlugin, error) { return r.writers.get(name) }

// Readers returns all reader plugins sorted by name.
func (r *Registry) Readers() []ReaderPlugin { return r.readers.list() }

// Writers returns all writer plugins sorted by name.
func (r *Registry) Writers() []WriterPlugin { return r.writers.list() }

// Scopes returns the sorted union of OAuth scopes required by the named reader
// and writer. An empty result means no Google authorization is needed.
func (r *Registry) Scopes(readerName, writerName string) ([]string, error) {
	reader, err := r.Reader(readerName)
	if err != nil {
		return nil, err
	}
	writer, err := r.Writer(writerName)
	if err != nil {
		return nil, err
	}
	return union(reader, writer), nil
}

// AllScopes returns the sorted union of the scopes of every registered plugin.
func (r *Registry) AllScopes() []string {
	var all []Plugin
	for _, p := range r.readers.list() {
		all = append(all, p)
	}
	for _, p := range r.writers.list() {
		all = append(all, p)
	}
	return union(all...)
}

func union(plugins ...Plugin) []string {
	scopes := []string{}
	for _, p := range plugins {
		scopes = append(scopes, p.RequiredScopes()...)
	}
	slices.Sort(scopes)
	return slices.Compact(scopes)
}

// CreateReader builds a reader from the named plugin.
func (r *Registry) CreateReader(name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	p, err := r.Reader(name)
	if err != nil {
		return nil, err
	}
	reader, err := p.NewReader(httpClient, config, logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s reader: %w", name, err)
	}
	return reader, nil
}

// CreateWriter builds a writer from the named plugin.
func (r *Registry) CreateWriter(name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	p, err := r.Writer(name)
	if err != nil {
		return nil, err
	}
	writer, err := p.NewWriter(httpClient, config, logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s writer: %w", name, err)
	}
	return writer, nil
}
