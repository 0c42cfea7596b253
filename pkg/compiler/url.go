package compiler

import (
	"strings"

	"github.com/primait/nembo/pkg/template"
	"github.com/primait/nembo/tools/yamler"
)

const (
	authTypeIAM  = "AWS_IAM"
	authTypeNone = "NONE"
)

// Default CORS policy applied when a field is left unset. A field
// explicitly set to null is omitted from the compiled resource instead.
var (
	defaultAllowedOrigins = []string{"*"}
	defaultAllowedHeaders = []string{
		"Content-Type",
		"X-Amz-Date",
		"Authorization",
		"X-Api-Key",
		"X-Amz-Security-Token",
		"X-Amz-User-Agent",
	}
	defaultAllowedMethods = []string{"*"}
)

// compileURL builds the public endpoint resource bound to the most
// specific invocation target: the provisioned-concurrency alias when one
// exists, the unqualified function otherwise. Open endpoints additionally
// get a public-invoke permission.
func (c *Compiler) compileURL(name string, cfg *yamler.URLConfig, fnID string, aliasID string) error {
	props := map[string]interface{}{
		"AuthType": authType(cfg.Authorizer),
	}

	dependsOn := []string{fnID}
	if aliasID != "" {
		props["TargetFunctionArn"] = template.Ref(aliasID)
		dependsOn = append(dependsOn, aliasID)
	} else {
		props["TargetFunctionArn"] = template.GetAtt(fnID, "Arn")
	}

	if cfg.InvokeMode != "" {
		props["InvokeMode"] = cfg.InvokeMode
	}
	if cfg.CORS != nil {
		props["Cors"] = compileCORS(cfg.CORS)
	}

	urlID := c.naming.URLLogicalID(name)
	if err := c.tmpl.Add(urlID, &template.Resource{
		Type:       "AWS::Lambda::Url",
		Properties: props,
		DependsOn:  dependsOn,
	}); err != nil {
		return err
	}

	if authType(cfg.Authorizer) == authTypeNone {
		permission := map[string]interface{}{
			"FunctionName":        template.GetAtt(fnID, "Arn"),
			"Action":              "lambda:InvokeFunctionUrl",
			"Principal":           "*",
			"FunctionUrlAuthType": authTypeNone,
		}
		if aliasID != "" {
			permission["Qualifier"] = ProvisionedAliasName
		}
		if err := c.tmpl.Add(c.naming.URLPermissionLogicalID(name), &template.Resource{
			Type:       "AWS::Lambda::Permission",
			Properties: permission,
			DependsOn:  []string{urlID},
		}); err != nil {
			return err
		}
	}

	c.tmpl.AddOutput(c.naming.URLOutput(name), template.Output{
		Description: "URL endpoint for " + name,
		Value:       template.GetAtt(urlID, "FunctionUrl"),
	})
	return nil
}

func authType(authorizer string) string {
	if strings.EqualFold(authorizer, "aws_iam") {
		return authTypeIAM
	}
	return authTypeNone
}

// compileCORS starts from the default policy and overrides it field by
// field: a present list replaces the default (de-duplicated), an explicit
// null removes the field entirely.
func compileCORS(cors *yamler.CORSConfig) map[string]interface{} {
	out := map[string]interface{}{
		"AllowOrigins": defaultAllowedOrigins,
		"AllowHeaders": defaultAllowedHeaders,
		"AllowMethods": defaultAllowedMethods,
	}

	applyListOverride(out, "AllowOrigins", cors.AllowedOrigins)
	applyListOverride(out, "AllowHeaders", cors.AllowedHeaders)
	applyListOverride(out, "AllowMethods", cors.AllowedMethods)

	if len(cors.ExposedResponseHeaders.Values) > 0 {
		out["ExposeHeaders"] = unique(cors.ExposedResponseHeaders.Values)
	}
	if cors.AllowCredentials != nil {
		out["AllowCredentials"] = *cors.AllowCredentials
	}
	if cors.MaxAge != nil {
		out["MaxAge"] = *cors.MaxAge
	}
	return out
}

func applyListOverride(out map[string]interface{}, field string, override yamler.OptionalStringList) {
	if !override.Present {
		return
	}
	// Both `field: null` and `field: []` mean "drop the field", never an
	// empty list in the compiled resource.
	if len(override.Values) == 0 {
		delete(out, field)
		return
	}
	out[field] = unique(override.Values)
}

func unique(slice []string) []string {
	keys := make(map[string]bool)
	list := []string{}
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			list = append(list, entry)
		}
	}
	return list
}
