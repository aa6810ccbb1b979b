package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt_AllReportTypes(t *testing.T) {
	for _, typ := range []ReportType{TypeBasic, TypeIntermediate, TypeAdvanced} {
		req := baseRequest(typ)
		p, err := BuildPrompt(req)
		require.NoError(t, err, "type %s", typ)
		assert.NotEmpty(t, p.System, "type %s", typ)
		assert.Contains(t, p.User, "retirement", "goals must appear in the user prompt")
		assert.Contains(t, p.User, "moderate")
		assert.Contains(t, p.User, "20 years")
	}
}

func TestBuildPrompt_OptionalFieldsOnlyWhenPresent(t *testing.T) {
	req := baseRequest(TypeIntermediate)
	p, err := BuildPrompt(req)
	require.NoError(t, err)
	assert.NotContains(t, p.User, "Age:")

	req.Data.Age = "42"
	p, err = BuildPrompt(req)
	require.NoError(t, err)
	assert.Contains(t, p.User, "Age: 42")
}

func TestBuildPrompt_UnknownType(t *testing.T) {
	req := baseRequest("deluxe")
	_, err := BuildPrompt(req)
	assert.Error(t, err)
}
