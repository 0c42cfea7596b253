package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsConflictingIds(t *testing.T) {
	tmpl := New()
	require.NoError(t, tmpl.Add("Thing", &Resource{Type: "AWS::Lambda::Function"}))

	err := tmpl.Add("Thing", &Resource{Type: "AWS::Logs::LogGroup"})
	assert.Error(t, err)
	assert.Equal(t, "AWS::Lambda::Function", tmpl.Get("Thing").Type)
}

func TestAddIsIdempotentForEqualResources(t *testing.T) {
	tmpl := New()
	res := &Resource{
		Type:       "AWS::Lambda::Function",
		Properties: map[string]interface{}{"MemorySize": 512},
	}
	require.NoError(t, tmpl.Add("Thing", res))
	assert.NoError(t, tmpl.Add("Thing", &Resource{
		Type:       "AWS::Lambda::Function",
		Properties: map[string]interface{}{"MemorySize": 512},
	}))
	assert.Len(t, tmpl.Resources, 1)
}

func TestMergeNeverDropsExistingResources(t *testing.T) {
	existing := New()
	require.NoError(t, existing.Add("OldLambdaVersionabc", &Resource{
		Type:           "AWS::Lambda::Version",
		DeletionPolicy: DeletionPolicyRetain,
	}))

	fresh := New()
	require.NoError(t, fresh.Add("NewLambdaFunction", &Resource{Type: "AWS::Lambda::Function"}))

	require.NoError(t, existing.Merge(fresh))
	assert.True(t, existing.Has("OldLambdaVersionabc"))
	assert.True(t, existing.Has("NewLambdaFunction"))
}

func TestValidateReportsDanglingEdges(t *testing.T) {
	tmpl := New()
	require.NoError(t, tmpl.Add("Fn", &Resource{
		Type:      "AWS::Lambda::Function",
		DependsOn: []string{"MissingRole"},
	}))

	err := tmpl.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Fn -> MissingRole")
}

func TestAddDependencySkipsDuplicates(t *testing.T) {
	tmpl := New()
	require.NoError(t, tmpl.Add("Fn", &Resource{Type: "AWS::Lambda::Function"}))
	require.NoError(t, tmpl.Add("Role", &Resource{Type: "AWS::IAM::Role"}))

	require.NoError(t, tmpl.AddDependency("Fn", "Role"))
	require.NoError(t, tmpl.AddDependency("Fn", "Role"))
	assert.Equal(t, []string{"Role"}, tmpl.Get("Fn").DependsOn)

	assert.Error(t, tmpl.AddDependency("Ghost", "Role"))
}

func TestJSONRoundTrip(t *testing.T) {
	tmpl := New()
	tmpl.Description = "test stack"
	require.NoError(t, tmpl.Add("Fn", &Resource{
		Type:       "AWS::Lambda::Function",
		Properties: map[string]interface{}{"Handler": "index.handler"},
	}))
	tmpl.AddOutput("FnArn", Output{Value: GetAtt("Fn", "Arn")})

	raw, err := json.Marshal(tmpl)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2010-09-09")

	var decoded Template
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "test stack", decoded.Description)
	assert.True(t, decoded.Has("Fn"))
	assert.Contains(t, decoded.Outputs, "FnArn")
}
