package compiler

import (
	"strings"

	"github.com/notdodo/arner"

	"github.com/primait/nembo/pkg/template"
	"github.com/primait/nembo/tools/yamler"
)

// ProvisionedAliasName is the alias pointing at the provisioned-
// concurrency version; qualified invocations go through it.
const ProvisionedAliasName = "provisioned"

type destinationKind string

const (
	destinationFunction destinationKind = "function"
	destinationQueue    destinationKind = "sqs"
	destinationTopic    destinationKind = "sns"
	destinationEventBus destinationKind = "eventBus"
)

var destinationActions = map[destinationKind]string{
	destinationFunction: "lambda:InvokeFunction",
	destinationQueue:    "sqs:SendMessage",
	destinationTopic:    "sns:Publish",
	destinationEventBus: "events:PutEvents",
}

// classifiedDestination is the tagged variant every destination target is
// resolved to before any permission logic runs.
type classifiedDestination struct {
	kind    destinationKind
	pointer interface{}
}

// classifyDestination resolves a target to a concrete destination
// pointer. Objects use their embedded pointer directly; strings are used
// verbatim when already in ARN form, otherwise treated as a same-service
// function name. The ARN substring patterns are a compatibility behavior:
// they can misclassify unusual but valid references and are preserved
// as-is.
func (c *Compiler) classifyDestination(name string, target yamler.DestinationTarget) (classifiedDestination, error) {
	if target.Type != "" || target.ARN != "" {
		kind := destinationKind(target.Type)
		if _, known := destinationActions[kind]; !known || target.ARN == "" {
			return classifiedDestination{}, &UnsupportedDestinationError{
				Code:     CodeUnsupportedDestination,
				Function: name,
				Target:   target.Type + ":" + target.ARN,
			}
		}
		if _, err := arner.ParseARN(target.ARN); err != nil {
			return classifiedDestination{}, &UnsupportedDestinationError{
				Code:     CodeUnsupportedDestination,
				Function: name,
				Target:   target.ARN,
			}
		}
		return classifiedDestination{kind: kind, pointer: target.ARN}, nil
	}

	value := target.Value
	if value == "" {
		return classifiedDestination{}, &UnsupportedDestinationError{
			Code:     CodeUnsupportedDestination,
			Function: name,
			Target:   value,
		}
	}

	if strings.HasPrefix(value, "arn:") {
		if _, err := arner.ParseARN(value); err != nil {
			return classifiedDestination{}, &UnsupportedDestinationError{
				Code:     CodeUnsupportedDestination,
				Function: name,
				Target:   value,
			}
		}
		switch {
		case strings.Contains(value, ":sqs:"):
			return classifiedDestination{kind: destinationQueue, pointer: value}, nil
		case strings.Contains(value, ":sns:"):
			return classifiedDestination{kind: destinationTopic, pointer: value}, nil
		case strings.Contains(value, ":event-bus/"):
			return classifiedDestination{kind: destinationEventBus, pointer: value}, nil
		default:
			return classifiedDestination{kind: destinationFunction, pointer: value}, nil
		}
	}

	// A bare name is another function of this same service.
	return classifiedDestination{
		kind:    destinationFunction,
		pointer: template.GetAtt(c.naming.FunctionLogicalID(value), "Arn"),
	}, nil
}

// compileDestinations builds the post-invocation event routing resource
// and appends an invoke permission per classified target. Appends go
// through the shared execution policy, whose deep-equality dedup makes
// repeated identical targets idempotent within one compilation.
func (c *Compiler) compileDestinations(name string, fn *yamler.Function, fnID string, aliasID string) error {
	config := map[string]interface{}{
		"FunctionName": template.Ref(fnID),
		"Qualifier":    "$LATEST",
	}
	dependsOn := []string{fnID}
	if aliasID != "" {
		config["Qualifier"] = ProvisionedAliasName
		dependsOn = append(dependsOn, aliasID)
	}
	if fn.MaximumEventAge != nil {
		config["MaximumEventAgeInSeconds"] = *fn.MaximumEventAge
	}
	if fn.MaximumRetryAttempts != nil {
		config["MaximumRetryAttempts"] = *fn.MaximumRetryAttempts
	}

	destinationConfig := map[string]interface{}{}
	if fn.Destinations != nil {
		if !fn.Destinations.OnSuccess.Empty() {
			classified, err := c.classifyDestination(name, fn.Destinations.OnSuccess)
			if err != nil {
				return err
			}
			destinationConfig["OnSuccess"] = map[string]interface{}{"Destination": classified.pointer}
			c.appendDestinationPermission(name, classified)
		}
		if !fn.Destinations.OnFailure.Empty() {
			classified, err := c.classifyDestination(name, fn.Destinations.OnFailure)
			if err != nil {
				return err
			}
			destinationConfig["OnFailure"] = map[string]interface{}{"Destination": classified.pointer}
			c.appendDestinationPermission(name, classified)
		}
	}
	if len(destinationConfig) > 0 {
		config["DestinationConfig"] = destinationConfig
	}

	return c.tmpl.Add(c.naming.EventInvokeConfigLogicalID(name), &template.Resource{
		Type:       "AWS::Lambda::EventInvokeConfig",
		Properties: config,
		DependsOn:  dependsOn,
	})
}

// appendDestinationPermission scopes each statement to its owning
// function through the Sid: the same target requested by two functions
// yields two statements, while the same function-target pair collapses to
// one via the document's deep-equality dedup.
func (c *Compiler) appendDestinationPermission(name string, classified classifiedDestination) {
	c.policy.Append(Statement{
		Sid:      c.destinationSid(name, classified),
		Effect:   "Allow",
		Action:   []string{destinationActions[classified.kind]},
		Resource: []interface{}{classified.pointer},
	})
}

func (c *Compiler) destinationSid(name string, classified classifiedDestination) string {
	ref := ""
	switch pointer := classified.pointer.(type) {
	case string:
		ref = pointer
	case map[string]interface{}:
		if att, ok := pointer["Fn::GetAtt"].([]interface{}); ok && len(att) > 0 {
			ref, _ = att[0].(string)
		}
	}
	return c.naming.Normalize(name) + "Dest" + nonAlphanumeric.ReplaceAllString(ref, "")
}
