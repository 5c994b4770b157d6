// Package topics is the closed catalog of subjects a learner can pick
// before a session.
package topics

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var catalogYAML []byte

type Topic struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Emoji       string   `yaml:"emoji" json:"emoji"`
	Description string   `yaml:"description" json:"description"`
	AgeRange    string   `yaml:"ageRange" json:"ageRange"`
	Keywords    []string `yaml:"keywords" json:"keywords"`

	minAge int
	maxAge int
}

// Suits reports whether age falls inside the topic's inclusive age range.
func (t Topic) Suits(age int) bool {
	return age >= t.minAge && age <= t.maxAge
}

type Catalog struct {
	topics []Topic
	byID   map[string]int
}

// Load parses the built-in catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// Parse builds a catalog from YAML with a top-level "topics" list.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Topics []Topic `yaml:"topics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if len(doc.Topics) == 0 {
		return nil, fmt.Errorf("topics catalog is empty")
	}

	c := &Catalog{
		topics: make([]Topic, 0, len(doc.Topics)),
		byID:   make(map[string]int, len(doc.Topics)),
	}
	for i, t := range doc.Topics {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, fmt.Errorf("topics[%d]: id is required", i)
		}
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("topic %q: name is required", t.ID)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("topic %q: duplicate id", t.ID)
		}
		minAge, maxAge, err := parseAgeRange(t.AgeRange)
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", t.ID, err)
		}
		t.minAge, t.maxAge = minAge, maxAge
		c.byID[t.ID] = len(c.topics)
		c.topics = append(c.topics, t)
	}
	return c, nil
}

func parseAgeRange(raw string) (int, int, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return 0, 0, fmt.Errorf("ageRange %q must be min-max", raw)
	}
	minAge, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("ageRange %q: invalid min", raw)
	}
	maxAge, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("ageRange %q: invalid max", raw)
	}
	if minAge < 0 || maxAge < minAge {
		return 0, 0, fmt.Errorf("ageRange %q is empty", raw)
	}
	return minAge, maxAge, nil
}

func (c *Catalog) All() []Topic {
	return append([]Topic(nil), c.topics...)
}

func (c *Catalog) ByID(id string) (Topic, bool) {
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Topic{}, false
	}
	return c.topics[i], true
}

// ForAge returns the topics suitable for age in catalog order.
func (c *Catalog) ForAge(age int) []Topic {
	var out []Topic
	for _, t := range c.topics {
		if t.Suits(age) {
			out = append(out, t)
		}
	}
	return out
}
