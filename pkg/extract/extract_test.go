package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const innerCode = `count = 0
for el in doc.elements("wall"):
    count += 1
print(count)`

func TestExtract_TaggedFence(t *testing.T) {
	e := New()

	text := "Here is the script:\n```starlark\n" + innerCode + "\n```\nHope that helps!"
	assert.Equal(t, innerCode, e.Extract(text))
}

func TestExtract_PythonTagAccepted(t *testing.T) {
	e := New()

	text := "```python\n" + innerCode + "\n```"
	assert.Equal(t, innerCode, e.Extract(text))
}

func TestExtract_TagDoesNotMatchPrefix(t *testing.T) {
	e := New()

	// "python3" is not the "python" tag; the block is still found as a
	// generic fence.
	text := "```python3\n" + innerCode + "\n```"
	assert.Equal(t, innerCode, e.Extract(text))
}

func TestExtract_GenericFence(t *testing.T) {
	e := New()

	text := "Some prose.\n```\n" + innerCode + "\n```\nMore prose."
	assert.Equal(t, innerCode, e.Extract(text))
}

func TestExtract_TaggedFencePreferredOverEarlierGeneric(t *testing.T) {
	e := New()

	text := "```\nnot the target\n```\n```starlark\n" + innerCode + "\n```"
	assert.Equal(t, innerCode, e.Extract(text))
}

func TestExtract_UnterminatedFence(t *testing.T) {
	e := New()

	// A missing closing fence is tolerated, not an error: everything from
	// the opening fence to the end of text is returned.
	text := "```starlark\n" + innerCode
	assert.Equal(t, innerCode, e.Extract(text))
}

func TestExtract_BareCodeHeuristic(t *testing.T) {
	e := New()

	tests := []struct {
		name string
		text string
	}{
		{"import line", "import math\nprint(math)"},
		{"load line", `load("module.star", "helper")` + "\nhelper()"},
		{"def line", "def go():\n    pass"},
		{"for line", "for x in selection.get():\n    print(x)"},
		{"comment line", "# Error: the API does not support this operation."},
		{"assignment", "walls = doc.elements(\"wall\")"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, e.Extract(tt.text))
		})
	}
}

func TestExtract_ProseReturnedUnmodified(t *testing.T) {
	e := New()

	text := "I'm sorry, I cannot help with that request."
	assert.Equal(t, text, e.Extract(text))
}

func TestExtract_Idempotent(t *testing.T) {
	e := New()

	// Re-extracting already-bare code returns it unchanged.
	once := e.Extract(innerCode)
	assert.Equal(t, innerCode, once)
	assert.Equal(t, once, e.Extract(once))
}

func TestExtract_EquivalentForms(t *testing.T) {
	e := New()

	// A language-tagged fence, a generic fence, and bare code-shaped text
	// with the same inner content all yield the same extracted string.
	tagged := e.Extract("```starlark\n" + innerCode + "\n```")
	generic := e.Extract("```\n" + innerCode + "\n```")
	bare := e.Extract(innerCode)

	assert.Equal(t, tagged, generic)
	assert.Equal(t, generic, bare)
}

func TestExtract_ComparisonIsNotAssignment(t *testing.T) {
	e := New()

	// An equality comparison alone should not trip the assignment heuristic.
	text := "is x == 1 the value you expected?"
	assert.Equal(t, text, e.Extract(text))
}
