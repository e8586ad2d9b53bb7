// Package client holds the chat client: the turn controller, topic modes,
// responders, mock accounts and per-user history.
package client

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed modes.yaml
var embeddedModes []byte

var ErrUnknownMode = errors.New("client: unknown mode")

// Mode is one topic mode of the assistant.
type Mode struct {
	Name           string   `yaml:"name"`
	Title          string   `yaml:"title"`
	Greeting       string   `yaml:"greeting"`
	Responses      []string `yaml:"responses"`
	PrayerResponse string   `yaml:"prayer_response,omitempty"`
	RulingResponse string   `yaml:"ruling_response,omitempty"`
}

type keywordSet struct {
	Greeting []string `yaml:"greeting"`
	Prayer   []string `yaml:"prayer"`
	Ruling   []string `yaml:"ruling"`
}

// Catalog is the ordered set of modes plus the canned keyword replies.
type Catalog struct {
	Default          string     `yaml:"default"`
	FallbackResponse string     `yaml:"fallback_response"`
	GreetingReply    string     `yaml:"greeting_reply"`
	Modes            []Mode     `yaml:"modes"`
	Keywords         keywordSet `yaml:"keywords"`

	index map[string]int
}

// DefaultCatalog parses the embedded mode definitions.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(embeddedModes)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("client: parse modes: %w", err)
	}
	if len(c.Modes) == 0 {
		return nil, errors.New("client: no modes defined")
	}

	c.index = make(map[string]int, len(c.Modes))
	for i, m := range c.Modes {
		if m.Name == "" {
			return nil, fmt.Errorf("client: mode %d has no name", i)
		}
		if _, dup := c.index[m.Name]; dup {
			return nil, fmt.Errorf("client: duplicate mode %q", m.Name)
		}
		c.index[m.Name] = i
	}

	if c.Default == "" {
		c.Default = c.Modes[0].Name
	}
	if _, ok := c.index[c.Default]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownMode, c.Default)
	}

	return &c, nil
}

func (c *Catalog) Lookup(name string) (Mode, bool) {
	i, ok := c.index[name]
	if !ok {
		return Mode{}, false
	}
	return c.Modes[i], true
}

// Title falls back to the raw name for modes no longer in the catalog.
func (c *Catalog) Title(name string) string {
	if m, ok := c.Lookup(name); ok {
		return m.Title
	}
	return name
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Modes))
	for _, m := range c.Modes {
		names = append(names, m.Name)
	}
	return names
}
