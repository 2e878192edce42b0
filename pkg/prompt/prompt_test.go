package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFixIt_EmbedsAllThreeInputs(t *testing.T) {
	request := "rename all walls on level 2"
	code := "for el in doc.elements(\"wall\"):\n    doc.set_param(el[\"id\"], \"nam\", \"x\")"
	errText := "execution fault: doc.set_param: no element with id 42"

	out, err := BuildFixIt(request, code, errText)
	require.NoError(t, err)

	assert.Contains(t, out, request)
	assert.Contains(t, out, code)
	assert.Contains(t, out, errText)
}

func TestBuildFixIt_Instructions(t *testing.T) {
	out, err := BuildFixIt("do something", "x = 1", "boom")
	require.NoError(t, err)

	assert.Contains(t, out, "Output ONLY Starlark code")
	assert.Contains(t, out, "Do NOT include markdown fences")
	assert.Contains(t, out, "single comment line")
	// Every documented capability variable is enumerated.
	for _, capName := range []string{"doc", "selection", "output"} {
		assert.Contains(t, out, capName+":")
	}
}

func TestBuildFixIt_PlaceholdersForAbsentInputs(t *testing.T) {
	out, err := BuildFixIt("do something", "", "")
	require.NoError(t, err)

	assert.Contains(t, out, noCodePlaceholder)
	assert.Contains(t, out, noErrorPlaceholder)
}

func TestBuildFixIt_EmptyRequestIsError(t *testing.T) {
	_, err := BuildFixIt("   ", "x = 1", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request is empty")
}

func TestBuildFixIt_EscapesTemplateMetacharacters(t *testing.T) {
	out, err := BuildFixIt(
		"set value to {{.Secret}}",
		"x = \"{{injected}}\"",
		"bad token {{",
	)
	require.NoError(t, err)

	// No raw action delimiters survive into the emitted prompt.
	assert.NotContains(t, out, "{{")
	assert.NotContains(t, out, "}}")
	// The content itself is still recognizable.
	assert.Contains(t, out, "set value to")
	assert.Contains(t, out, "injected")
}

func TestBuildInitial_ContainsRequestAndContext(t *testing.T) {
	out, err := BuildInitial("count the doors", "doc.elements(category) lists elements")
	require.NoError(t, err)

	assert.Contains(t, out, "count the doors")
	assert.Contains(t, out, "doc.elements(category) lists elements")
	assert.Contains(t, out, "Output ONLY Starlark code")
}

func TestBuildInitial_EmptyContextGetsPlaceholder(t *testing.T) {
	out, err := BuildInitial("count the doors", "")
	require.NoError(t, err)
	assert.Contains(t, out, "No relevant documentation snippets")
}

func TestBuildInitial_EmptyRequestIsError(t *testing.T) {
	_, err := BuildInitial("", "ctx")
	require.Error(t, err)
}

func TestCapabilityVars_MentionsEveryBinding(t *testing.T) {
	for _, name := range []string{"doc", "selection", "output"} {
		assert.True(t, strings.Contains(CapabilityVars, name), "missing %s", name)
	}
}
