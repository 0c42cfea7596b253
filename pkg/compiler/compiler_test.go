package compiler

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primait/nembo/pkg/template"
	"github.com/primait/nembo/tools/yamler"
)

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "code.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func noVersioning() yamler.Provider {
	return yamler.Provider{VersionFunctions: boolPtr(false)}
}

func compileFunctions(t *testing.T, provider yamler.Provider, functions map[string]*yamler.Function) (*Compiler, *template.Template, error) {
	t.Helper()
	tmpl := template.New()
	comp, err := New("my-service", provider, tmpl)
	require.NoError(t, err)
	return comp, tmpl, comp.Compile(functions)
}

func handlerFunction(t *testing.T) *yamler.Function {
	t.Helper()
	return &yamler.Function{
		Handler:      "index.handler",
		ArtifactPath: writeArtifact(t, "artifact-bytes"),
	}
}

func resourcesOfType(tmpl *template.Template, resourceType string) []string {
	var ids []string
	for id, res := range tmpl.Resources {
		if res.Type == resourceType {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func TestBothHandlerAndImageFails(t *testing.T) {
	_, _, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{
		"bad": {Handler: "index.handler", Image: "123456789012.dkr.ecr.eu-west-1.amazonaws.com/app@sha256:abc"},
	})

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, CodeBothHandlerAndImage, confErr.Code)
	assert.Equal(t, "bad", confErr.Function)
}

func TestNeitherHandlerNorImageFails(t *testing.T) {
	_, _, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"bad": {}})

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, CodeNeitherHandlerNorImage, confErr.Code)
}

func TestMemoryFallsBackToProviderThenDefault(t *testing.T) {
	provider := noVersioning()
	provider.MemorySize = 512

	_, tmpl, err := compileFunctions(t, provider, map[string]*yamler.Function{"a": handlerFunction(t)})
	require.NoError(t, err)

	props := tmpl.Get("ALambdaFunction").Properties
	assert.Equal(t, 512, props["MemorySize"])
	assert.Equal(t, DefaultTimeout, props["Timeout"])

	_, tmpl, err = compileFunctions(t, noVersioning(), map[string]*yamler.Function{"b": handlerFunction(t)})
	require.NoError(t, err)
	assert.Equal(t, DefaultMemorySize, tmpl.Get("BLambdaFunction").Properties["MemorySize"])
}

func TestArchitectureFallbackChain(t *testing.T) {
	provider := noVersioning()
	provider.Architecture = "arm64"

	fn := handlerFunction(t)
	_, tmpl, err := compileFunctions(t, provider, map[string]*yamler.Function{"a": fn})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"arm64"}, tmpl.Get("ALambdaFunction").Properties["Architectures"])

	_, tmpl, err = compileFunctions(t, noVersioning(), map[string]*yamler.Function{"b": handlerFunction(t)})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{DefaultArchitecture}, tmpl.Get("BLambdaFunction").Properties["Architectures"])
}

func TestHandlerFunctionCodeLocation(t *testing.T) {
	fn := handlerFunction(t)
	_, tmpl, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"hello": fn})
	require.NoError(t, err)

	props := tmpl.Get("HelloLambdaFunction").Properties
	assert.Equal(t, "index.handler", props["Handler"])
	assert.Equal(t, DefaultRuntime, props["Runtime"])

	code := props["Code"].(map[string]interface{})
	assert.Equal(t, "nembo/my-service/artifacts/"+filepath.Base(fn.ArtifactPath), code["S3Key"])
	assert.Equal(t, template.Ref(DeploymentBucketLogicalID), code["S3Bucket"])
}

func TestImageFunction(t *testing.T) {
	_, tmpl, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{
		"img": {Image: "123456789012.dkr.ecr.eu-west-1.amazonaws.com/app@sha256:abc"},
	})
	require.NoError(t, err)

	props := tmpl.Get("ImgLambdaFunction").Properties
	assert.Equal(t, "Image", props["PackageType"])
	assert.NotContains(t, props, "Handler")
	assert.NotContains(t, props, "Runtime")
	code := props["Code"].(map[string]interface{})
	assert.Equal(t, "123456789012.dkr.ecr.eu-west-1.amazonaws.com/app@sha256:abc", code["ImageUri"])
}

func TestFileSystemConfigRequiresVPC(t *testing.T) {
	fn := handlerFunction(t)
	fn.FileSystemConfig = &yamler.FileSystemConfig{
		Arn:            "arn:aws:elasticfilesystem:eu-west-1:123456789012:access-point/fsap-1",
		LocalMountPath: "/mnt/data",
	}

	_, _, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"efs": fn})
	var missingErr *MissingDependencyError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, CodeFileSystemConfigWithoutVPC, missingErr.Code)

	fn = handlerFunction(t)
	fn.FileSystemConfig = &yamler.FileSystemConfig{
		Arn:            "arn:aws:elasticfilesystem:eu-west-1:123456789012:access-point/fsap-1",
		LocalMountPath: "/mnt/data",
	}
	fn.VPC = &yamler.VPC{SubnetIds: []string{"subnet-1"}, SecurityGroupIds: []string{"sg-1"}}

	comp, tmpl, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"efs": fn})
	require.NoError(t, err)
	assert.Contains(t, tmpl.Get("EfsLambdaFunction").Properties, "FileSystemConfigs")

	var found bool
	for _, stmt := range comp.policy.Document().Statement {
		if actions, ok := stmt.Action.([]string); ok && len(actions) > 0 && actions[0] == "elasticfilesystem:ClientMount" {
			found = true
		}
	}
	assert.True(t, found, "expected filesystem access statement in execution policy")
}

func TestProvisionedConcurrencyConflictsWithSnapStart(t *testing.T) {
	fn := handlerFunction(t)
	fn.ProvisionedConcurrency = intPtr(2)
	fn.SnapStart = true

	_, _, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"fast": fn})
	var conflictErr *ConflictingSettingsError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "fast", conflictErr.Function)
}

func TestLogGroupDependency(t *testing.T) {
	_, tmpl, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"logged": handlerFunction(t)})
	require.NoError(t, err)

	assert.True(t, tmpl.Has("LoggedLogGroup"))
	assert.Contains(t, tmpl.Get("LoggedLambdaFunction").DependsOn, "LoggedLogGroup")

	logProps := tmpl.Get("LoggedLogGroup").Properties
	assert.Equal(t, "/aws/lambda/my-service-logged", logProps["LogGroupName"])
}

func TestDisabledLogsSkipLogGroup(t *testing.T) {
	fn := handlerFunction(t)
	fn.DisableLogs = true

	_, tmpl, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"quiet": fn})
	require.NoError(t, err)
	assert.False(t, tmpl.Has("QuietLogGroup"))
	assert.NotContains(t, tmpl.Get("QuietLambdaFunction").DependsOn, "QuietLogGroup")
}

func TestExternalRoleIsNeverMutated(t *testing.T) {
	provider := noVersioning()
	provider.Role = "arn:aws:iam::123456789012:role/custom"

	fn := handlerFunction(t)
	fn.Tracing = "Active"

	comp, tmpl, err := compileFunctions(t, provider, map[string]*yamler.Function{"traced": fn})
	require.NoError(t, err)

	assert.False(t, tmpl.Has(RoleLogicalID))
	assert.Nil(t, comp.policy.Document())
	assert.Equal(t, provider.Role, tmpl.Get("TracedLambdaFunction").Properties["Role"])
}

func TestPreSeededRoleDocumentCollectsPermissions(t *testing.T) {
	tmpl := template.New()
	require.NoError(t, tmpl.Add(RoleLogicalID, &template.Resource{
		Type: "AWS::IAM::Role",
		Properties: map[string]interface{}{
			"Policies": []interface{}{
				map[string]interface{}{
					"PolicyName": "my-service-lambda",
					"PolicyDocument": map[string]interface{}{
						"Version":   "2012-10-17",
						"Statement": []interface{}{},
					},
				},
			},
		},
	}))

	comp, err := New("my-service", noVersioning(), tmpl)
	require.NoError(t, err)

	fn := handlerFunction(t)
	fn.Tracing = "Active"
	require.NoError(t, comp.Compile(map[string]*yamler.Function{"traced": fn}))

	doc := comp.policy.Document()
	require.NotNil(t, doc)
	var actions []string
	for _, stmt := range doc.Statement {
		if list, ok := stmt.Action.([]string); ok {
			actions = append(actions, list...)
		}
	}
	assert.Contains(t, actions, "xray:PutTraceSegments")

	// The decoded document is written back: appends are visible in the
	// serialized role, not just in the in-process handle.
	policies := tmpl.Get(RoleLogicalID).Properties["Policies"].([]interface{})
	policy := policies[0].(map[string]interface{})
	assert.Same(t, doc, policy["PolicyDocument"])
}

func TestPreSeededRoleWithoutPolicyDocumentFails(t *testing.T) {
	tmpl := template.New()
	require.NoError(t, tmpl.Add(RoleLogicalID, &template.Resource{
		Type:       "AWS::IAM::Role",
		Properties: map[string]interface{}{"Path": "/"},
	}))

	_, err := New("my-service", noVersioning(), tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), RoleLogicalID)
}

func TestDefaultRoleCollectsPermissions(t *testing.T) {
	fn := handlerFunction(t)
	fn.OnError = "arn:aws:sns:eu-west-1:123456789012:alerts"
	fn.KMSKeyArn = "arn:aws:kms:eu-west-1:123456789012:key/abc"

	comp, tmpl, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"guarded": fn})
	require.NoError(t, err)

	require.True(t, tmpl.Has(RoleLogicalID))
	doc := comp.policy.Document()
	var actions []string
	for _, stmt := range doc.Statement {
		if list, ok := stmt.Action.([]string); ok {
			actions = append(actions, list...)
		}
	}
	assert.Contains(t, actions, "sns:Publish")
	assert.Contains(t, actions, "kms:Decrypt")
}

func TestTagsMergeFunctionOverProvider(t *testing.T) {
	provider := noVersioning()
	provider.Tags = map[string]string{"team": "platform", "env": "prod"}

	fn := handlerFunction(t)
	fn.Tags = map[string]string{"team": "billing"}

	_, tmpl, err := compileFunctions(t, provider, map[string]*yamler.Function{"tagged": fn})
	require.NoError(t, err)

	tags := tmpl.Get("TaggedLambdaFunction").Properties["Tags"].([]interface{})
	assert.Equal(t, []interface{}{
		map[string]interface{}{"Key": "env", "Value": "prod"},
		map[string]interface{}{"Key": "team", "Value": "billing"},
	}, tags)
}

func TestProvisionedConcurrencyForcesVersionAndAlias(t *testing.T) {
	fn := handlerFunction(t)
	fn.ProvisionedConcurrency = intPtr(3)

	_, tmpl, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"warm": fn})
	require.NoError(t, err)

	versions := resourcesOfType(tmpl, "AWS::Lambda::Version")
	require.Len(t, versions, 1)
	assert.True(t, tmpl.Has("WarmProvConcLambdaAlias"))

	alias := tmpl.Get("WarmProvConcLambdaAlias")
	assert.Contains(t, alias.DependsOn, versions[0])
	config := alias.Properties["ProvisionedConcurrencyConfig"].(map[string]interface{})
	assert.Equal(t, 3, config["ProvisionedConcurrentExecutions"])
}

func TestVersioningDisabledByDefaultFlagSkipsVersion(t *testing.T) {
	_, tmpl, err := compileFunctions(t, noVersioning(), map[string]*yamler.Function{"plain": handlerFunction(t)})
	require.NoError(t, err)
	assert.Empty(t, resourcesOfType(tmpl, "AWS::Lambda::Version"))
}

func TestLayerReferencesResolveToGraphLayers(t *testing.T) {
	layerArtifact := writeArtifact(t, "layer-bytes")

	tmpl := template.New()
	comp, err := New("my-service", noVersioning(), tmpl)
	require.NoError(t, err)

	require.NoError(t, comp.CompileLayers(map[string]*yamler.Layer{
		"shared": {ArtifactPath: layerArtifact, CompatibleRuntimes: []string{"nodejs20.x"}},
	}))
	require.True(t, tmpl.Has("SharedLambdaLayer"))

	fn := handlerFunction(t)
	fn.Layers = []interface{}{"shared", "arn:aws:lambda:eu-west-1:123456789012:layer:external:1"}
	require.NoError(t, comp.Compile(map[string]*yamler.Function{"consumer": fn}))

	layers := tmpl.Get("ConsumerLambdaFunction").Properties["Layers"].([]interface{})
	assert.Equal(t, template.Ref("SharedLambdaLayer"), layers[0])
	assert.Equal(t, "arn:aws:lambda:eu-west-1:123456789012:layer:external:1", layers[1])
}
