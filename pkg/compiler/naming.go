package compiler

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RoleLogicalID is the logical id of the default, provider-managed
// execution role seeded into every template.
const RoleLogicalID = "IamRoleLambdaExecution"

var nonAlphanumeric = regexp.MustCompile(`[^0-9A-Za-z]`)

// Naming derives the deterministic logical ids every resource is keyed
// by. Ids must be unique and stable across runs: creation-order references
// and the version minting scheme both rely on that.
type Naming struct {
	caser cases.Caser
}

func NewNaming() *Naming {
	return &Naming{caser: cases.Title(language.English, cases.NoLower)}
}

// Normalize turns a function name into its CloudFormation-safe logical
// form: dashes and underscores are spelled out, first letter capitalized.
func (n *Naming) Normalize(name string) string {
	replaced := strings.ReplaceAll(name, "-", "Dash")
	replaced = strings.ReplaceAll(replaced, "_", "Underscore")
	return n.caser.String(replaced)
}

func (n *Naming) FunctionLogicalID(name string) string {
	return n.Normalize(name) + "LambdaFunction"
}

func (n *Naming) LogGroupLogicalID(name string) string {
	return n.Normalize(name) + "LogGroup"
}

func (n *Naming) LogGroupName(name string) string {
	return "/aws/lambda/" + name
}

// VersionLogicalID embeds the content digest so a changed function always
// yields a fresh id and an unchanged one always maps to the same id.
func (n *Naming) VersionLogicalID(name string, digest string) string {
	return n.Normalize(name) + "LambdaVersion" + nonAlphanumeric.ReplaceAllString(digest, "")
}

func (n *Naming) AliasLogicalID(name string) string {
	return n.Normalize(name) + "ProvConcLambdaAlias"
}

func (n *Naming) LayerLogicalID(name string) string {
	return n.Normalize(name) + "LambdaLayer"
}

func (n *Naming) URLLogicalID(name string) string {
	return n.Normalize(name) + "LambdaFunctionUrl"
}

func (n *Naming) URLPermissionLogicalID(name string) string {
	return n.Normalize(name) + "LambdaFunctionUrlPermission"
}

func (n *Naming) EventInvokeConfigLogicalID(name string) string {
	return n.Normalize(name) + "LambdaEvConf"
}

func (n *Naming) QualifiedArnOutput(name string) string {
	return n.Normalize(name) + "LambdaFunctionQualifiedArn"
}

func (n *Naming) URLOutput(name string) string {
	return n.Normalize(name) + "LambdaFunctionUrlOutput"
}
