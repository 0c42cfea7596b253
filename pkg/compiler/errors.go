package compiler

import "fmt"

// Stable machine-readable error codes. Compilation halts on the first
// error; no partial template is considered deployable.
const (
	CodeBothHandlerAndImage             = "FUNCTION_BOTH_HANDLER_AND_IMAGE"
	CodeNeitherHandlerNorImage          = "FUNCTION_NEITHER_HANDLER_NOR_IMAGE"
	CodeMissingArtifact                 = "FUNCTION_MISSING_ARTIFACT"
	CodeFileSystemConfigWithoutVPC      = "FILESYSTEM_CONFIG_WITHOUT_VPC"
	CodeProvisionedConcurrencySnapStart = "PROVISIONED_CONCURRENCY_WITH_SNAPSTART"
	CodeUnsupportedDestination          = "UNSUPPORTED_DESTINATION_TARGET"
)

// ConfigurationError reports mutually exclusive or missing required
// fields on one function definition.
type ConfigurationError struct {
	Code     string
	Function string
	Message  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] function %q: %s", e.Code, e.Function, e.Message)
}

// MissingDependencyError reports a feature that requires another feature
// which is not present.
type MissingDependencyError struct {
	Code     string
	Function string
	Message  string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("[%s] function %q: %s", e.Code, e.Function, e.Message)
}

// ConflictingSettingsError reports two features that were declared
// incompatible.
type ConflictingSettingsError struct {
	Code     string
	Function string
	Message  string
}

func (e *ConflictingSettingsError) Error() string {
	return fmt.Sprintf("[%s] function %q: %s", e.Code, e.Function, e.Message)
}

// UnsupportedDestinationError reports a destination target whose shape
// could not be classified.
type UnsupportedDestinationError struct {
	Code     string
	Function string
	Target   string
}

func (e *UnsupportedDestinationError) Error() string {
	return fmt.Sprintf("[%s] function %q: unsupported destination target %q", e.Code, e.Function, e.Target)
}
