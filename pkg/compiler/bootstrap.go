package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/primait/nembo/pkg/template"
)

// DeploymentBucketLogicalID names the bucket resource created when the
// provider does not bring its own deployment bucket.
const DeploymentBucketLogicalID = "DeploymentBucket"

type roleKind int

const (
	roleDefault roleKind = iota
	roleArn
	roleLogicalID
	roleName
)

// roleReference is the tagged variant the provider role setting resolves
// to, once, at compiler construction. Downstream code never re-inspects
// the raw string.
type roleReference struct {
	kind  roleKind
	value string
}

func (c *Compiler) resolveRole(role string) roleReference {
	switch {
	case role == "":
		return roleReference{kind: roleDefault}
	case strings.HasPrefix(role, "arn:"):
		return roleReference{kind: roleArn, value: role}
	case c.tmpl.Has(role):
		return roleReference{kind: roleLogicalID, value: role}
	default:
		return roleReference{kind: roleName, value: role}
	}
}

func (r roleReference) property() interface{} {
	switch r.kind {
	case roleDefault:
		return template.GetAtt(RoleLogicalID, "Arn")
	case roleArn:
		return r.value
	case roleLogicalID:
		return template.GetAtt(r.value, "Arn")
	default:
		return template.Sub("arn:${AWS::Partition}:iam::${AWS::AccountId}:role/" + r.value)
	}
}

// seedExecutionRole makes sure the default execution role and its policy
// document exist in the graph and returns the shared append handle. An
// externally supplied role is assumed to carry its own permissions: the
// handle then swallows every append.
func (c *Compiler) seedExecutionRole() (*ExecutionPolicy, error) {
	if c.role.kind != roleDefault {
		return NewExecutionPolicy(nil, false), nil
	}

	if existing := c.tmpl.Get(RoleLogicalID); existing != nil {
		doc, err := adoptPolicyDocument(existing)
		if err != nil {
			return nil, err
		}
		return NewExecutionPolicy(doc, true), nil
	}

	doc := &PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Effect: "Allow",
				Action: []string{"logs:CreateLogStream", "logs:CreateLogGroup", "logs:TagResource"},
				Resource: []interface{}{
					template.Sub("arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/lambda/" + c.service + "*:*"),
				},
			},
			{
				Effect: "Allow",
				Action: []string{"logs:PutLogEvents"},
				Resource: []interface{}{
					template.Sub("arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/lambda/" + c.service + "*:*:*"),
				},
			},
		},
	}

	err := c.tmpl.Add(RoleLogicalID, &template.Resource{
		Type: "AWS::IAM::Role",
		Properties: map[string]interface{}{
			"AssumeRolePolicyDocument": map[string]interface{}{
				"Version": "2012-10-17",
				"Statement": []interface{}{
					map[string]interface{}{
						"Effect":    "Allow",
						"Principal": map[string]interface{}{"Service": []string{"lambda.amazonaws.com"}},
						"Action":    []string{"sts:AssumeRole"},
					},
				},
			},
			"Path": "/",
			"Policies": []interface{}{
				map[string]interface{}{
					"PolicyName":     c.service + "-lambda",
					"PolicyDocument": doc,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return NewExecutionPolicy(doc, true), nil
}

// adoptPolicyDocument returns the appendable policy document of a
// pre-seeded execution role. A document that arrived in plain-map form
// (a graph deserialized from JSON) is decoded and written back into the
// resource so later appends show up in the serialized output. A role
// without a usable document is an error: degrading to a no-op handle
// would silently drop required permissions.
func adoptPolicyDocument(role *template.Resource) (*PolicyDocument, error) {
	policies, ok := role.Properties["Policies"].([]interface{})
	if !ok || len(policies) == 0 {
		return nil, fmt.Errorf("pre-seeded role %s carries no policies", RoleLogicalID)
	}
	policy, ok := policies[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("pre-seeded role %s: unexpected policy shape", RoleLogicalID)
	}

	switch doc := policy["PolicyDocument"].(type) {
	case *PolicyDocument:
		return doc, nil
	case map[string]interface{}:
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("pre-seeded role %s: %w", RoleLogicalID, err)
		}
		decoded := &PolicyDocument{}
		if err := json.Unmarshal(raw, decoded); err != nil {
			return nil, fmt.Errorf("pre-seeded role %s: %w", RoleLogicalID, err)
		}
		policy["PolicyDocument"] = decoded
		return decoded, nil
	default:
		return nil, fmt.Errorf("pre-seeded role %s carries no policy document", RoleLogicalID)
	}
}

// seedDeploymentBucket provides the artifact bucket resource when the
// provider did not configure one.
func (c *Compiler) seedDeploymentBucket() error {
	if c.provider.DeploymentBucket != "" {
		return nil
	}
	return c.tmpl.Add(DeploymentBucketLogicalID, &template.Resource{
		Type: "AWS::S3::Bucket",
		Properties: map[string]interface{}{
			"BucketEncryption": map[string]interface{}{
				"ServerSideEncryptionConfiguration": []interface{}{
					map[string]interface{}{
						"ServerSideEncryptionByDefault": map[string]interface{}{
							"SSEAlgorithm": "AES256",
						},
					},
				},
			},
		},
	})
}

func (c *Compiler) bucketReference() interface{} {
	if c.provider.DeploymentBucket != "" {
		return c.provider.DeploymentBucket
	}
	return template.Ref(DeploymentBucketLogicalID)
}

// seedLogGroup makes sure the function's log sink exists in the graph.
func (c *Compiler) seedLogGroup(name string, functionName string) (string, error) {
	id := c.naming.LogGroupLogicalID(name)
	if c.tmpl.Has(id) {
		return id, nil
	}
	err := c.tmpl.Add(id, &template.Resource{
		Type: "AWS::Logs::LogGroup",
		Properties: map[string]interface{}{
			"LogGroupName": c.naming.LogGroupName(functionName),
		},
	})
	return id, err
}
