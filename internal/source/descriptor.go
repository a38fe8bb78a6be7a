// Package source feeds ranked sets from external collaborators. Directory
// publishes services declared by YAML descriptor files.
package source

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/rankreg/internal/handle"
)

// Attribute keys set on every descriptor handle.
const (
	AttrName     = "name"
	AttrEndpoint = "endpoint"
	AttrVersion  = "version"
	AttrFile     = "source.file"
	AttrSource   = "source.name"
)

// Descriptor is a service declared by one descriptor file.
//
//	name: db
//	endpoint: postgres://db:5432
//	version: 1.4.2
//	ranking: 10
//	attributes:
//	  region: eu
//	  tags: [fast, primary]
type Descriptor struct {
	Name       string         `yaml:"name"`
	Endpoint   string         `yaml:"endpoint"`
	Version    string         `yaml:"version,omitempty"`
	Ranking    int            `yaml:"ranking,omitempty"`
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// File is the base name of the file the descriptor was read from.
	File string `yaml:"-"`
}

// ParseDescriptor decodes a descriptor. Name is required.
func ParseDescriptor(file string, data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", file, err)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("parse descriptor %s: missing name", file)
	}
	d.File = file
	return &d, nil
}

// Marshal encodes the descriptor as YAML.
func (d *Descriptor) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// HandleAttributes returns the attributes the descriptor is published with.
// Free-form attributes never override the well known keys.
func (d *Descriptor) HandleAttributes(source string) handle.Attributes {
	attrs := make(handle.Attributes, len(d.Attributes)+6)
	for k, v := range d.Attributes {
		attrs[k] = v
	}
	attrs[AttrName] = d.Name
	attrs[AttrEndpoint] = d.Endpoint
	if d.Version != "" {
		attrs[AttrVersion] = d.Version
	}
	attrs[handle.RankingKey] = d.Ranking
	attrs[AttrFile] = d.File
	attrs[AttrSource] = source
	return attrs
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s@%s", d.Name, d.Endpoint)
}
