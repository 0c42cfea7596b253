package compiler

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/primait/nembo/pkg/io/logging"
	"github.com/primait/nembo/pkg/template"
	"github.com/primait/nembo/tools/yamler"
)

// Hard defaults applied when neither the function nor the provider says
// otherwise.
const (
	DefaultMemorySize   = 1024
	DefaultTimeout      = 6
	DefaultRuntime      = "nodejs20.x"
	DefaultArchitecture = "x86_64"
)

// Compiler translates declarative function definitions into the shared
// CloudFormation template. Compilation is strictly sequential per
// function: the execution policy document and the resource graph are
// shared mutable state.
type Compiler struct {
	service  string
	provider yamler.Provider
	naming   *Naming
	strategy versionStrategy
	policy   *ExecutionPolicy
	role     roleReference
	tmpl     *template.Template

	// layerArtifacts maps in-graph layer logical ids to their resolved
	// local artifact path, feeding the version digest.
	layerArtifacts map[string]string

	logger logging.LogManager
}

// New prepares a compiler against a (possibly pre-seeded) template. The
// hashing generation and the execution role reference are resolved once
// here, never re-inspected downstream.
func New(service string, provider yamler.Provider, tmpl *template.Template) (*Compiler, error) {
	strategy, err := strategyFor(provider.LambdaHashingVersion)
	if err != nil {
		return nil, err
	}

	c := &Compiler{
		service:        service,
		provider:       provider,
		naming:         NewNaming(),
		strategy:       strategy,
		tmpl:           tmpl,
		layerArtifacts: map[string]string{},
		logger:         logging.GetLogManager(),
	}
	c.role = c.resolveRole(provider.Role)
	if c.policy, err = c.seedExecutionRole(); err != nil {
		return nil, err
	}
	if err := c.seedDeploymentBucket(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Compiler) Template() *template.Template {
	return c.tmpl
}

func (c *Compiler) artifactDirectory() string {
	return fmt.Sprintf("nembo/%s/artifacts", c.service)
}

// CompileLayers inserts every declared layer before the functions that
// reference it are compiled.
func (c *Compiler) CompileLayers(layers map[string]*yamler.Layer) error {
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		layer := layers[name]
		id := c.naming.LayerLogicalID(name)

		layerName := layer.Name
		if layerName == "" {
			layerName = name
		}
		props := map[string]interface{}{
			"LayerName": layerName,
			"Content": map[string]interface{}{
				"S3Bucket": c.bucketReference(),
				"S3Key":    c.artifactDirectory() + "/" + filepath.Base(layer.ArtifactPath),
			},
		}
		if layer.Description != "" {
			props["Description"] = layer.Description
		}
		if len(layer.CompatibleRuntimes) > 0 {
			props["CompatibleRuntimes"] = layer.CompatibleRuntimes
		}
		if len(layer.CompatibleArchitectures) > 0 {
			props["CompatibleArchitectures"] = layer.CompatibleArchitectures
		}

		res := &template.Resource{Type: "AWS::Lambda::LayerVersion", Properties: props}
		if layer.Retain {
			res.DeletionPolicy = template.DeletionPolicyRetain
		}
		if err := c.tmpl.Add(id, res); err != nil {
			return err
		}
		c.layerArtifacts[id] = layer.ArtifactPath
	}
	return nil
}

// Compile walks every function in stable order and merges the compiled
// resources into the template. The first error aborts the run: a
// partially compiled template is never considered deployable.
func (c *Compiler) Compile(functions map[string]*yamler.Function) error {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := c.compileFunction(name, functions[name]); err != nil {
			return err
		}
	}
	return c.tmpl.Validate()
}

func (c *Compiler) compileFunction(name string, fn *yamler.Function) error {
	c.logger.Debug("Compiling function", "function", name)

	switch {
	case fn.Handler != "" && fn.Image != "":
		return &ConfigurationError{
			Code:     CodeBothHandlerAndImage,
			Function: name,
			Message:  "handler and image are mutually exclusive",
		}
	case fn.Handler == "" && fn.Image == "":
		return &ConfigurationError{
			Code:     CodeNeitherHandlerNorImage,
			Function: name,
			Message:  "either handler or image must be set",
		}
	}
	if fn.ProvisionedConcurrency != nil && fn.SnapStart {
		return &ConflictingSettingsError{
			Code:     CodeProvisionedConcurrencySnapStart,
			Function: name,
			Message:  "provisionedConcurrency and snapStart cannot be used together",
		}
	}

	functionName := fn.Name
	if functionName == "" {
		functionName = c.service + "-" + name
	}

	props := map[string]interface{}{
		"FunctionName": functionName,
		"MemorySize":   firstInt(fn.MemorySize, c.provider.MemorySize, DefaultMemorySize),
		"Timeout":      firstInt(fn.Timeout, c.provider.Timeout, DefaultTimeout),
		"Role":         c.role.property(),
	}

	if fn.Image != "" {
		props["Code"] = map[string]interface{}{"ImageUri": fn.Image}
		props["PackageType"] = "Image"
	} else {
		if fn.ArtifactPath == "" {
			return &ConfigurationError{
				Code:     CodeMissingArtifact,
				Function: name,
				Message:  "artifact was not resolved before compilation",
			}
		}
		props["Code"] = map[string]interface{}{
			"S3Bucket": c.bucketReference(),
			"S3Key":    c.artifactDirectory() + "/" + filepath.Base(fn.ArtifactPath),
		}
		props["Handler"] = fn.Handler
		props["Runtime"] = firstString(fn.Runtime, c.provider.Runtime, DefaultRuntime)
	}

	if fn.Description != "" {
		props["Description"] = fn.Description
	}
	if env := mergeStringMaps(c.provider.Environment, fn.Environment); len(env) > 0 {
		props["Environment"] = map[string]interface{}{"Variables": env}
	}
	if tags := mergeStringMaps(c.provider.Tags, fn.Tags); len(tags) > 0 {
		props["Tags"] = tagList(tags)
	}
	props["Architectures"] = []interface{}{firstString(fn.Architecture, c.provider.Architecture, DefaultArchitecture)}
	if fn.EphemeralStorageSize > 0 {
		props["EphemeralStorage"] = map[string]interface{}{"Size": fn.EphemeralStorageSize}
	}
	if fn.ReservedConcurrency != nil {
		props["ReservedConcurrentExecutions"] = *fn.ReservedConcurrency
	}
	if fn.SnapStart {
		props["SnapStart"] = map[string]interface{}{"ApplyOn": "PublishedVersions"}
	}

	vpc := fn.VPC
	if vpc == nil {
		vpc = c.provider.VPC
	}
	if vpc != nil {
		props["VpcConfig"] = map[string]interface{}{
			"SubnetIds":        vpc.SubnetIds,
			"SecurityGroupIds": vpc.SecurityGroupIds,
		}
	}

	if fn.OnError != "" {
		props["DeadLetterConfig"] = map[string]interface{}{"TargetArn": fn.OnError}
		c.appendDeadLetterPermission(fn.OnError)
	}
	if kmsArn := firstString(fn.KMSKeyArn, c.provider.KMSKeyArn); kmsArn != "" {
		props["KmsKeyArn"] = kmsArn
		c.policy.Append(Statement{
			Effect:   "Allow",
			Action:   []string{"kms:Decrypt"},
			Resource: []interface{}{kmsArn},
		})
	}
	if mode := firstString(fn.Tracing, c.provider.Tracing); mode != "" {
		props["TracingConfig"] = map[string]interface{}{"Mode": mode}
		c.policy.Append(Statement{
			Effect:   "Allow",
			Action:   []string{"xray:PutTraceSegments", "xray:PutTelemetryRecords"},
			Resource: []interface{}{"*"},
		})
	}

	if fn.FileSystemConfig != nil {
		if props["VpcConfig"] == nil {
			return &MissingDependencyError{
				Code:     CodeFileSystemConfigWithoutVPC,
				Function: name,
				Message:  "fileSystemConfig requires a vpc configuration",
			}
		}
		props["FileSystemConfigs"] = []interface{}{
			map[string]interface{}{
				"Arn":            fn.FileSystemConfig.Arn,
				"LocalMountPath": fn.FileSystemConfig.LocalMountPath,
			},
		}
		c.policy.Append(Statement{
			Effect: "Allow",
			Action: []string{
				"elasticfilesystem:ClientMount",
				"elasticfilesystem:ClientWrite",
				"elasticfilesystem:DescribeMountTargets",
			},
			Resource: []interface{}{fn.FileSystemConfig.Arn},
		})
	}

	if layers := c.resolveLayers(fn); len(layers) > 0 {
		props["Layers"] = layers
	}

	res := &template.Resource{
		Type:       "AWS::Lambda::Function",
		Properties: props,
	}
	if fn.Condition != "" {
		res.Condition = fn.Condition
	}
	res.DependsOn = append(res.DependsOn, fn.DependsOn...)

	fnID := c.naming.FunctionLogicalID(name)

	if !fn.DisableLogs {
		logGroupID, err := c.seedLogGroup(name, functionName)
		if err != nil {
			return err
		}
		res.DependsOn = append(res.DependsOn, logGroupID)
	}
	if c.role.kind == roleDefault {
		res.DependsOn = append(res.DependsOn, RoleLogicalID)
	} else if c.role.kind == roleLogicalID {
		res.DependsOn = append(res.DependsOn, c.role.value)
	}

	if err := c.tmpl.Add(fnID, res); err != nil {
		return err
	}

	aliasID := ""
	if c.shouldVersion(fn) {
		versionID, alias, err := c.mintVersion(name, fn, fnID, res)
		if err != nil {
			return err
		}
		aliasID = alias
		c.tmpl.AddOutput(c.naming.QualifiedArnOutput(name), template.Output{
			Description: "Current version ARN for " + name,
			Value:       template.Ref(versionID),
		})
	}

	if fn.URL != nil {
		if err := c.compileURL(name, fn.URL, fnID, aliasID); err != nil {
			return err
		}
	}

	if fn.Destinations != nil || fn.MaximumEventAge != nil || fn.MaximumRetryAttempts != nil {
		if err := c.compileDestinations(name, fn, fnID, aliasID); err != nil {
			return err
		}
	}
	return nil
}

// shouldVersion decides whether an immutable version must be minted:
// versioning enabled (function override, falling back to the provider
// flag, default on), or any feature that can only target a published
// version.
func (c *Compiler) shouldVersion(fn *yamler.Function) bool {
	enabled := true
	if c.provider.VersionFunctions != nil {
		enabled = *c.provider.VersionFunctions
	}
	if fn.VersionFunction != nil {
		enabled = *fn.VersionFunction
	}
	return enabled || fn.ProvisionedConcurrency != nil || fn.SnapStart
}

func (c *Compiler) appendDeadLetterPermission(targetArn string) {
	action := "sns:Publish"
	if strings.Contains(targetArn, ":sqs:") {
		action = "sqs:SendMessage"
	}
	c.policy.Append(Statement{
		Effect:   "Allow",
		Action:   []string{action},
		Resource: []interface{}{targetArn},
	})
}

// resolveLayers returns the function's layer list: the function-level
// override or a defensive copy of the provider list, with bare names of
// in-graph layers replaced by references.
func (c *Compiler) resolveLayers(fn *yamler.Function) []interface{} {
	source := fn.Layers
	if source == nil && c.provider.Layers != nil {
		source = make([]interface{}, len(c.provider.Layers))
		copy(source, c.provider.Layers)
	}

	out := make([]interface{}, 0, len(source))
	for _, entry := range source {
		switch v := yamler.NormalizeValue(entry).(type) {
		case string:
			if id := c.naming.LayerLogicalID(v); !strings.HasPrefix(v, "arn:") && c.tmpl.Has(id) {
				out = append(out, template.Ref(id))
				continue
			}
			out = append(out, v)
		default:
			out = append(out, v)
		}
	}
	return out
}

func firstInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func mergeStringMaps(base map[string]string, override map[string]string) map[string]string {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// tagList renders merged tags as the stable Key/Value list form.
func tagList(tags map[string]string) []interface{} {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]interface{}{"Key": k, "Value": tags[k]})
	}
	return out
}
