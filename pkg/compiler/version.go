package compiler

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"

	"github.com/primait/nembo/pkg/artifact"
	"github.com/primait/nembo/pkg/template"
	"github.com/primait/nembo/tools/yamler"
)

// Hashing generations. The digest of an unchanged function must stay
// stable across releases: deployed state depends on it, so the legacy
// behavior is kept selectable rather than silently replaced.
const (
	HashingVersionLegacy  = "20200924"
	HashingVersionCurrent = "20201221"
)

// versionStrategy isolates the two incompatible digest generations: how
// artifact content enters the accumulator and how the canonical snapshot
// is serialized.
type versionStrategy interface {
	writeArtifact(h hash.Hash, path string) error
	serializeSnapshot(snapshot map[string]interface{}) (string, error)
}

func strategyFor(hashingVersion string) (versionStrategy, error) {
	switch hashingVersion {
	case HashingVersionLegacy:
		return legacyStrategy{}, nil
	case HashingVersionCurrent, "":
		return currentStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown lambdaHashingVersion %q", hashingVersion)
	}
}

// currentStrategy feeds the pre-computed per-file hash into the digest
// and deep-sorts every mapping at every nesting level before serializing.
type currentStrategy struct{}

func (currentStrategy) writeArtifact(h hash.Hash, path string) error {
	fileHash, err := artifact.Sha256Path(path)
	if err != nil {
		return err
	}
	_, err = h.Write([]byte(fileHash))
	return err
}

func (currentStrategy) serializeSnapshot(snapshot map[string]interface{}) (string, error) {
	return oj.JSON(snapshot, &ojg.Options{Sort: true}), nil
}

// legacyStrategy streams raw artifact bytes into the digest and sorts the
// snapshot's top-level and layer keys lexicographically before
// serializing, reproducing the first-generation digests bit for bit.
type legacyStrategy struct{}

func (legacyStrategy) writeArtifact(h hash.Hash, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("hashing artifact %s: %w", path, err)
	}
	defer file.Close()
	_, err = io.Copy(h, file)
	return err
}

func (legacyStrategy) serializeSnapshot(snapshot map[string]interface{}) (string, error) {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		encodedKey, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		encodedValue, err := json.Marshal(snapshot[k])
		if err != nil {
			return "", err
		}
		b.Write(encodedKey)
		b.WriteByte(':')
		b.Write(encodedValue)
	}
	b.WriteByte('}')
	return b.String(), nil
}

type layerSnapshot struct {
	artifactPath string
	properties   map[string]interface{}
}

// mintVersion computes the content-addressed digest of one function and
// inserts the immutable version resource (plus the provisioned-concurrency
// alias when requested). Returned ids: version logical id and alias
// logical id ("" when no alias was created).
func (c *Compiler) mintVersion(name string, fn *yamler.Function, fnID string, res *template.Resource) (string, string, error) {
	h := sha256.New()

	if fn.Image != "" {
		// The image reference embeds its own content digest; no local
		// hashing is possible or needed.
		if _, at := splitImageDigest(fn.Image); at != "" {
			if _, err := h.Write([]byte(at)); err != nil {
				return "", "", err
			}
		}
	} else {
		if fn.ArtifactPath == "" {
			return "", "", &ConfigurationError{
				Code:     CodeMissingArtifact,
				Function: name,
				Message:  "cannot version a function whose artifact was not resolved",
			}
		}
		if err := c.strategy.writeArtifact(h, fn.ArtifactPath); err != nil {
			return "", "", err
		}
	}

	layers := c.graphLayers(res)
	sort.Slice(layers, func(i, j int) bool {
		return layers[i].artifactPath < layers[j].artifactPath
	})
	layerProperties := make([]interface{}, 0, len(layers))
	for _, layer := range layers {
		if err := c.strategy.writeArtifact(h, layer.artifactPath); err != nil {
			return "", "", err
		}
		layerProperties = append(layerProperties, layer.properties)
	}

	snapshot := cloneProperties(res.Properties)
	if fn.Image == "" {
		// The storage location is interchangeable; only content counts,
		// and content was hashed above. Image references stay: they are
		// the actual content pointer.
		delete(snapshot, "Code")
	}
	delete(snapshot, "ReservedConcurrentExecutions")
	delete(snapshot, "Tags")
	if len(layerProperties) > 0 {
		snapshot["LayerConfigurations"] = layerProperties
	}

	text, err := c.strategy.serializeSnapshot(snapshot)
	if err != nil {
		return "", "", err
	}
	if _, err := h.Write([]byte(text)); err != nil {
		return "", "", err
	}

	digest := base64.StdEncoding.EncodeToString(h.Sum(nil))
	versionID := c.naming.VersionLogicalID(name, digest)

	versionProps := map[string]interface{}{
		"FunctionName": template.Ref(fnID),
	}
	if fn.Image == "" {
		codeSha, err := artifact.Sha256Path(fn.ArtifactPath)
		if err != nil {
			return "", "", err
		}
		versionProps["CodeSha256"] = codeSha
	}
	if fn.Description != "" {
		versionProps["Description"] = fn.Description
	}

	if err := c.tmpl.Add(versionID, &template.Resource{
		Type:           "AWS::Lambda::Version",
		DeletionPolicy: template.DeletionPolicyRetain,
		Properties:     versionProps,
	}); err != nil {
		return "", "", err
	}

	aliasID := ""
	if fn.ProvisionedConcurrency != nil {
		aliasID = c.naming.AliasLogicalID(name)
		if err := c.tmpl.Add(aliasID, &template.Resource{
			Type: "AWS::Lambda::Alias",
			Properties: map[string]interface{}{
				"FunctionName":    template.Ref(fnID),
				"FunctionVersion": template.GetAtt(versionID, "Version"),
				"Name":            ProvisionedAliasName,
				"ProvisionedConcurrencyConfig": map[string]interface{}{
					"ProvisionedConcurrentExecutions": *fn.ProvisionedConcurrency,
				},
			},
			DependsOn: []string{versionID},
		}); err != nil {
			return "", "", err
		}
	}

	return versionID, aliasID, nil
}

// graphLayers returns the layers referenced by the compute resource that
// are defined within this same graph; externally referenced layer ARNs
// are ignored.
func (c *Compiler) graphLayers(res *template.Resource) []layerSnapshot {
	refs, ok := res.Properties["Layers"].([]interface{})
	if !ok {
		return nil
	}

	var layers []layerSnapshot
	for _, entry := range refs {
		ref, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		id, ok := ref["Ref"].(string)
		if !ok || !c.tmpl.Has(id) {
			continue
		}
		path, ok := c.layerArtifacts[id]
		if !ok {
			continue
		}

		props := cloneProperties(c.tmpl.Get(id).Properties)
		// Only logical configuration affects version identity, not where
		// the layer package happens to be stored.
		if content, ok := props["Content"].(map[string]interface{}); ok {
			delete(content, "S3Key")
		}
		layers = append(layers, layerSnapshot{artifactPath: path, properties: props})
	}
	return layers
}

func splitImageDigest(image string) (string, string) {
	if idx := strings.LastIndex(image, "@"); idx >= 0 {
		return image[:idx], image[idx+1:]
	}
	return image, ""
}
