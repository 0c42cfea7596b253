package template

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// DeletionPolicyRetain marks a resource that must survive stack updates
// which remove it from the template.
const DeletionPolicyRetain = "Retain"

const formatVersion = "2010-09-09"

// Resource is a single CloudFormation resource description: a type tag,
// a free-form property bag and the explicit creation-order constraints.
type Resource struct {
	Type           string                 `json:"Type"`
	Properties     map[string]interface{} `json:"Properties,omitempty"`
	DependsOn      []string               `json:"DependsOn,omitempty"`
	DeletionPolicy string                 `json:"DeletionPolicy,omitempty"`
	Condition      string                 `json:"Condition,omitempty"`
}

type Export struct {
	Name interface{} `json:"Name"`
}

type Output struct {
	Description string      `json:"Description,omitempty"`
	Value       interface{} `json:"Value"`
	Export      *Export     `json:"Export,omitempty"`
}

// Template is a resource graph keyed by logical id.
type Template struct {
	Description string
	Resources   map[string]*Resource
	Outputs     map[string]Output
}

func New() *Template {
	return &Template{
		Resources: map[string]*Resource{},
		Outputs:   map[string]Output{},
	}
}

// Add inserts a resource under its logical id. Re-adding a deep-equal
// resource is a no-op; inserting a different resource under an existing id
// is an error since logical ids are unique within one graph.
func (t *Template) Add(id string, res *Resource) error {
	if existing, ok := t.Resources[id]; ok {
		if reflect.DeepEqual(existing, res) {
			return nil
		}
		return fmt.Errorf("logical id %q already present with a different definition", id)
	}
	t.Resources[id] = res
	return nil
}

func (t *Template) Get(id string) *Resource {
	return t.Resources[id]
}

func (t *Template) Has(id string) bool {
	_, ok := t.Resources[id]
	return ok
}

func (t *Template) AddOutput(name string, out Output) {
	t.Outputs[name] = out
}

// AddDependency appends a creation-order edge to a resource, skipping
// duplicates.
func (t *Template) AddDependency(id string, dependsOn string) error {
	res, ok := t.Resources[id]
	if !ok {
		return fmt.Errorf("cannot attach dependency to unknown logical id %q", id)
	}
	for _, d := range res.DependsOn {
		if d == dependsOn {
			return nil
		}
	}
	res.DependsOn = append(res.DependsOn, dependsOn)
	return nil
}

// Merge copies every resource and output of other into t. The merge is
// strictly additive: resources already present are never dropped, and a
// conflicting definition under the same id is an error.
func (t *Template) Merge(other *Template) error {
	for id, res := range other.Resources {
		if err := t.Add(id, res); err != nil {
			return err
		}
	}
	for name, out := range other.Outputs {
		t.Outputs[name] = out
	}
	return nil
}

// Validate checks that every DependsOn edge resolves to a resource present
// in the graph.
func (t *Template) Validate() error {
	var dangling []string
	for id, res := range t.Resources {
		for _, dep := range res.DependsOn {
			if !t.Has(dep) {
				dangling = append(dangling, fmt.Sprintf("%s -> %s", id, dep))
			}
		}
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return fmt.Errorf("dangling dependency edges: %s", strings.Join(dangling, ", "))
	}
	return nil
}

type templateDocument struct {
	AWSTemplateFormatVersion string               `json:"AWSTemplateFormatVersion"`
	Description              string               `json:"Description,omitempty"`
	Resources                map[string]*Resource `json:"Resources"`
	Outputs                  map[string]Output    `json:"Outputs,omitempty"`
}

func (t *Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(templateDocument{
		AWSTemplateFormatVersion: formatVersion,
		Description:              t.Description,
		Resources:                t.Resources,
		Outputs:                  t.Outputs,
	})
}

func (t *Template) UnmarshalJSON(data []byte) error {
	var doc templateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	t.Description = doc.Description
	t.Resources = doc.Resources
	t.Outputs = doc.Outputs
	if t.Resources == nil {
		t.Resources = map[string]*Resource{}
	}
	if t.Outputs == nil {
		t.Outputs = map[string]Output{}
	}
	return nil
}
