package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
			return nil
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// InlineImage is an image embedded in the HTML body and referenced as
// "cid:<ContentID>". It can be written as a mapping {path: ..., cid: ...}
// or as a two-item list [path, cid].
type InlineImage struct {
	Path      string `yaml:"path"`
	ContentID string `yaml:"cid"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (i *InlineImage) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		type plain InlineImage
		var p plain
		if err := value.Decode(&p); err != nil {
			return err
		}
		*i = InlineImage(p)
		return nil
	case yaml.SequenceNode:
		var pair []string
		if err := value.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("line %d: inline image must be [path, cid], got %d items", value.Line, len(pair))
		}
		i.Path, i.ContentID = pair[0], pair[1]
		return nil
	default:
		return fmt.Errorf("line %d: inline image must be a mapping or a [path, cid] pair", value.Line)
	}
}
