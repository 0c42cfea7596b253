package yamler

import (
	"fmt"
	"os"
	"sort"

	"github.com/primait/nembo/tools/filesystem/files"

	"gopkg.in/yaml.v2"
)

// GetManifest reads and parses a nembo.yml service definition.
func GetManifest(file string) (*Manifest, error) {
	raw, err := os.ReadFile(files.NormalizePath(file))
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", file, err)
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("unmarshalling manifest %s: %w", file, err)
	}
	if m.Service == "" {
		return nil, fmt.Errorf("manifest %s: missing service name", file)
	}
	for name, fn := range m.Functions {
		if fn == nil {
			m.Functions[name] = &Function{}
		}
	}
	return m, nil
}

// FunctionNames returns the declared function names in a stable order.
func (m *Manifest) FunctionNames() []string {
	names := make([]string, 0, len(m.Functions))
	for name := range m.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
