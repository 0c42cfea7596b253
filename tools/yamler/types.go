package yamler

// Manifest is the parsed nembo.yml service definition: provider-wide
// defaults plus the declared functions.
type Manifest struct {
	Service   string               `yaml:"service"`
	Provider  Provider             `yaml:"provider,omitempty"`
	Functions map[string]*Function `yaml:"functions,omitempty"`
	Layers    map[string]*Layer    `yaml:"layers,omitempty"`
}

// Layer declares a shared layer compiled into this same graph. Functions
// reference it by name; external layers are referenced by ARN instead.
type Layer struct {
	Name                    string   `yaml:"name,omitempty"`
	Description             string   `yaml:"description,omitempty"`
	Package                 *Package `yaml:"package,omitempty"`
	CompatibleRuntimes      []string `yaml:"compatibleRuntimes,omitempty"`
	CompatibleArchitectures []string `yaml:"compatibleArchitectures,omitempty"`
	Retain                  bool     `yaml:"retain,omitempty"`

	// ArtifactPath is filled in by the artifact resolver.
	ArtifactPath string `yaml:"-"`
}

// Provider carries the service-wide fallback values applied to every
// function that does not override them.
type Provider struct {
	Region               string            `yaml:"region,omitempty"`
	Runtime              string            `yaml:"runtime,omitempty"`
	MemorySize           int               `yaml:"memorySize,omitempty"`
	Timeout              int               `yaml:"timeout,omitempty"`
	Architecture         string            `yaml:"architecture,omitempty"`
	Role                 string            `yaml:"role,omitempty"`
	DeploymentBucket     string            `yaml:"deploymentBucket,omitempty"`
	VersionFunctions     *bool             `yaml:"versionFunctions,omitempty"`
	LambdaHashingVersion string            `yaml:"lambdaHashingVersion,omitempty"`
	Environment          map[string]string `yaml:"environment,omitempty"`
	Tags                 map[string]string `yaml:"tags,omitempty"`
	Tracing              string            `yaml:"tracing,omitempty"`
	KMSKeyArn            string            `yaml:"kmsKeyArn,omitempty"`
	Layers               []interface{}     `yaml:"layers,omitempty"`
	VPC                  *VPC              `yaml:"vpc,omitempty"`
}

type VPC struct {
	SubnetIds        []string `yaml:"subnetIds"`
	SecurityGroupIds []string `yaml:"securityGroupIds"`
}

type Package struct {
	// Artifact is a local path, an https:// URL or an s3:// URI pointing
	// at the deployment package.
	Artifact string `yaml:"artifact,omitempty"`
}

type FileSystemConfig struct {
	Arn            string `yaml:"arn"`
	LocalMountPath string `yaml:"localMountPath"`
}

// Function is the declarative definition of a single deployable unit.
// Exactly one of Handler and Image must be set.
type Function struct {
	Name                   string            `yaml:"name,omitempty"`
	Handler                string            `yaml:"handler,omitempty"`
	Image                  string            `yaml:"image,omitempty"`
	Runtime                string            `yaml:"runtime,omitempty"`
	Description            string            `yaml:"description,omitempty"`
	MemorySize             int               `yaml:"memorySize,omitempty"`
	Timeout                int               `yaml:"timeout,omitempty"`
	Architecture           string            `yaml:"architecture,omitempty"`
	Package                *Package          `yaml:"package,omitempty"`
	Environment            map[string]string `yaml:"environment,omitempty"`
	Tags                   map[string]string `yaml:"tags,omitempty"`
	Layers                 []interface{}     `yaml:"layers,omitempty"`
	VPC                    *VPC              `yaml:"vpc,omitempty"`
	FileSystemConfig       *FileSystemConfig `yaml:"fileSystemConfig,omitempty"`
	OnError                string            `yaml:"onError,omitempty"`
	KMSKeyArn              string            `yaml:"kmsKeyArn,omitempty"`
	Tracing                string            `yaml:"tracing,omitempty"`
	Condition              string            `yaml:"condition,omitempty"`
	DependsOn              []string          `yaml:"dependsOn,omitempty"`
	EphemeralStorageSize   int               `yaml:"ephemeralStorageSize,omitempty"`
	ReservedConcurrency    *int              `yaml:"reservedConcurrency,omitempty"`
	ProvisionedConcurrency *int              `yaml:"provisionedConcurrency,omitempty"`
	VersionFunction        *bool             `yaml:"versionFunction,omitempty"`
	SnapStart              bool              `yaml:"snapStart,omitempty"`
	DisableLogs            bool              `yaml:"disableLogs,omitempty"`
	URL                    *URLConfig        `yaml:"url,omitempty"`
	Destinations           *Destinations     `yaml:"destinations,omitempty"`
	MaximumEventAge        *int              `yaml:"maximumEventAge,omitempty"`
	MaximumRetryAttempts   *int              `yaml:"maximumRetryAttempts,omitempty"`

	// ArtifactPath is the resolved local artifact location, filled in by
	// the artifact resolver before compilation starts.
	ArtifactPath string `yaml:"-"`
}

type URLConfig struct {
	Authorizer string      `yaml:"authorizer,omitempty"`
	InvokeMode string      `yaml:"invokeMode,omitempty"`
	CORS       *CORSConfig `yaml:"cors,omitempty"`
}

// CORSConfig distinguishes three states per list field: absent (take the
// default), explicitly nulled (omit the field from the compiled resource)
// and present (replace the default).
type CORSConfig struct {
	AllowedOrigins         OptionalStringList `yaml:"allowedOrigins,omitempty"`
	AllowedHeaders         OptionalStringList `yaml:"allowedHeaders,omitempty"`
	AllowedMethods         OptionalStringList `yaml:"allowedMethods,omitempty"`
	ExposedResponseHeaders OptionalStringList `yaml:"exposedResponseHeaders,omitempty"`
	AllowCredentials       *bool              `yaml:"allowCredentials,omitempty"`
	MaxAge                 *int               `yaml:"maxAge,omitempty"`
}

// UnmarshalYAML decodes the struct normally, then re-reads the raw
// mapping to catch explicitly nulled keys: the yaml decoder skips custom
// unmarshalers for null nodes, which would make `field: null` look like
// a missing key.
func (c *CORSConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain CORSConfig
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	markNulled(raw, "allowedOrigins", &c.AllowedOrigins)
	markNulled(raw, "allowedHeaders", &c.AllowedHeaders)
	markNulled(raw, "allowedMethods", &c.AllowedMethods)
	markNulled(raw, "exposedResponseHeaders", &c.ExposedResponseHeaders)
	return nil
}

func markNulled(raw map[string]interface{}, key string, field *OptionalStringList) {
	if value, ok := raw[key]; ok && value == nil {
		field.Present = true
		field.Values = nil
	}
}

// OptionalStringList is a yaml list that remembers whether its key was
// present at all, so an explicit `field: null` can be told apart from a
// missing key.
type OptionalStringList struct {
	Present bool
	Values  []string
}

func (l *OptionalStringList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	l.Present = true
	var values []string
	if err := unmarshal(&values); err == nil {
		l.Values = values
		return nil
	}
	var single string
	if err := unmarshal(&single); err != nil {
		return err
	}
	l.Values = []string{single}
	return nil
}

type Destinations struct {
	OnSuccess DestinationTarget `yaml:"onSuccess,omitempty"`
	OnFailure DestinationTarget `yaml:"onFailure,omitempty"`
}

// DestinationTarget is either a bare reference string (function name or
// fully-qualified ARN) or a structured {type, arn} object.
type DestinationTarget struct {
	Value string
	Type  string
	ARN   string
}

func (d *DestinationTarget) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var value string
	if err := unmarshal(&value); err == nil {
		d.Value = value
		return nil
	}
	var obj struct {
		Type string `yaml:"type"`
		Arn  string `yaml:"arn"`
	}
	if err := unmarshal(&obj); err != nil {
		return err
	}
	d.Type = obj.Type
	d.ARN = obj.Arn
	return nil
}

func (d DestinationTarget) Empty() bool {
	return d.Value == "" && d.Type == "" && d.ARN == ""
}
