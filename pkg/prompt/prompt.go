// Package prompt builds the prompts sent to the model: the built-in initial
// prompt template and the corrective fix-it prompt that embeds the previous
// failing code and its error.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// CapabilityVars documents the named variables pre-bound into every script's
// execution scope. The enumeration here must match the workspace bindings;
// both the initial and fix-it prompts quote it verbatim to the model.
const CapabilityVars = `- doc: the current design document (doc.elements, doc.add, doc.get_param, doc.set_param, doc.delete)
- selection: the active element selection (selection.get, selection.set)
- output: text output surface for results (output.write); print() is also captured`

// Placeholders substituted when a fix-it input is absent.
const (
	noCodePlaceholder  = "# (no code from the previous attempt was captured)"
	noErrorPlaceholder = "(no error message was captured)"
)

var fixItTemplate = template.Must(template.New("fixit").Parse(`ROLE: You are an expert scripting assistant for a design-document workspace.

TASK: The Starlark script below was generated for the user's request but failed when executed. Produce a corrected script.

RESPONSE FORMAT:
- Output ONLY Starlark code.
- Start directly with executable code.
- Do NOT include markdown fences, explanations, or any surrounding prose.
- If the request is infeasible or the error cannot be fixed, output ONLY a single comment line explaining why (e.g. # Error: the workspace API does not support this operation.).

EXECUTION ENVIRONMENT:
These variables are PRE-DEFINED in the execution scope:
{{.Capabilities}}

CRITICAL CONSTRAINTS:
- Do NOT manage transactions; the host wraps the whole script in one.
- Do NOT ask for user interaction; the script must run unattended.

ORIGINAL USER REQUEST:
---
{{.Request}}
---

FAILING SCRIPT:
---
{{.FailedCode}}
---

ERROR RAISED:
---
{{.ErrorText}}
---

CORRECTED STARLARK SCRIPT:
`))

var initialTemplate = template.Must(template.New("initial").Parse(`ROLE: You are an expert scripting assistant for a design-document workspace.

TASK: Generate Starlark code only, suitable for direct execution against the workspace.

RESPONSE FORMAT:
- Output ONLY Starlark code.
- Start directly with executable code.
- Do NOT include markdown fences, explanations, or any surrounding prose.
- If the task is impossible with the available API, output ONLY a single comment line explaining why.

EXECUTION ENVIRONMENT:
- The script runs inside a transaction managed by the host; do NOT begin, commit, or roll back anything yourself.
- These variables are PRE-DEFINED in the execution scope:
{{.Capabilities}}

CONTEXT FROM WORKSPACE API DOCUMENTATION:
---
{{.Context}}
---

USER REQUEST:
---
{{.Request}}
---

STARLARK SCRIPT:
`))

// BuildFixIt produces the corrective prompt for the next attempt. The request
// must be present; absent code or error inputs are replaced by documented
// placeholders. All three inputs are escaped so template metacharacters in
// model output or user text cannot corrupt the prompt structure.
func BuildFixIt(request, failedCode, errorText string) (string, error) {
	if strings.TrimSpace(request) == "" {
		return "", fmt.Errorf("cannot build fix-it prompt: original request is empty")
	}

	if strings.TrimSpace(failedCode) == "" {
		failedCode = noCodePlaceholder
	}
	if strings.TrimSpace(errorText) == "" {
		errorText = noErrorPlaceholder
	}

	var b strings.Builder
	err := fixItTemplate.Execute(&b, struct {
		Capabilities string
		Request      string
		FailedCode   string
		ErrorText    string
	}{
		Capabilities: CapabilityVars,
		Request:      escape(request),
		FailedCode:   escape(failedCode),
		ErrorText:    escape(errorText),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render fix-it prompt: %w", err)
	}
	return b.String(), nil
}

// BuildInitial renders the built-in initial prompt. It is used when no
// external retrieval collaborator is configured; contextText may be empty.
func BuildInitial(request, contextText string) (string, error) {
	if strings.TrimSpace(request) == "" {
		return "", fmt.Errorf("cannot build initial prompt: request is empty")
	}
	if strings.TrimSpace(contextText) == "" {
		contextText = "# No relevant documentation snippets available."
	}

	var b strings.Builder
	err := initialTemplate.Execute(&b, struct {
		Capabilities string
		Context      string
		Request      string
	}{
		Capabilities: CapabilityVars,
		Context:      escape(contextText),
		Request:      escape(request),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render initial prompt: %w", err)
	}
	return b.String(), nil
}

// escape neutralizes template action delimiters in embedded content. The
// content is already data by the time it reaches the template, but a stray
// "{{" surviving into the emitted prompt could corrupt a later formatting
// pass, so it is broken up here.
func escape(s string) string {
	s = strings.ReplaceAll(s, "{{", "{ {")
	return strings.ReplaceAll(s, "}}", "} }")
}
