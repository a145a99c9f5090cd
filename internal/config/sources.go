package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/docassist/internal/domain"
)

// Source is one preset web source.
// sources:
//   - id: boe
//     domains: [boe.es]
type Source struct {
	ID      string   `yaml:"id"`
	Label   string   `yaml:"label"`
	Badge   string   `yaml:"badge"`
	Domains []string `yaml:"domains"`
}

type Sources struct {
	Sources []Source `yaml:"sources"`
}

func DefaultSources() *Sources {
	return &Sources{Sources: []Source{
		{ID: string(domain.SourceBOE), Label: "Spanish Official Gazette (BOE)", Badge: "BOE.es", Domains: []string{"boe.es"}},
		{ID: string(domain.SourceBORNE), Label: "UK Government (BORNE)", Badge: "BORNE.gov.uk", Domains: []string{"borne.gov.uk"}},
	}}
}

// LoadSources reads the presets from a YAML file.
func LoadSources(path string) (*Sources, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Sources
	if err := yaml.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode sources %s: %w", path, err)
	}
	for i, src := range s.Sources {
		if src.ID == "" {
			return nil, fmt.Errorf("source #%d in %s has no id", i+1, path)
		}
	}
	return &s, nil
}

// Lookup finds a preset by id.
func (s *Sources) Lookup(id string) (Source, bool) {
	for _, src := range s.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}

// Domains returns the domain filter for a search. "all" and unknown presets
// mean no filter; "custom" uses the comma separated list from the form.
func (s *Sources) Domains(source domain.WebSource, customWebs string) []string {
	switch source {
	case domain.SourceAll, "":
		return nil
	case domain.SourceCustom:
		return domain.SplitDomains(customWebs)
	}
	if src, ok := s.Lookup(string(source)); ok {
		return append([]string(nil), src.Domains...)
	}
	return nil
}
