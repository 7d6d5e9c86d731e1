package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

const (
	phaseReview   = "review"
	phaseSecurity = "security"
	phaseDebug    = "debug"
	phaseChat     = "chat"
)

// Output shapes shown to the model. Decoding goes through the mentor types.
type issueSchema struct {
	File     string `json:"file" jsonschema:"description=Path of the file the issue is in"`
	Line     int    `json:"line,omitempty" jsonschema:"minimum=1"`
	Severity string `json:"severity" jsonschema:"enum=high,enum=medium,enum=low"`
	Message  string `json:"message" jsonschema:"description=Why this is an issue and how to fix it"`
}

type mutationSchema struct {
	File string `json:"file"`
	Diff string `json:"diff" jsonschema:"description=Proposed replacement code for the file"`
}

type responseSchema struct {
	Status   string           `json:"status" jsonschema:"enum=SUCCESS,enum=FAILED"`
	Feedback []issueSchema    `json:"feedback"`
	Actions  []mutationSchema `json:"actions,omitempty"`
	Insights string           `json:"insights,omitempty"`
}

type chatSchema struct {
	Action      string `json:"action" jsonschema:"enum=modify_file,enum=create_file,enum=insert_code,enum=explain_only"`
	TargetFile  string `json:"target_file,omitempty"`
	Code        string `json:"code,omitempty"`
	Explanation string `json:"explanation"`
}

// generateSchema reflects T into an inline JSON schema.
func generateSchema[T any]() string {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	b, err := json.MarshalIndent(reflector.Reflect(zero), "", "  ")
	if err != nil {
		panic(fmt.Sprintf("failed to generate schema for type %T: %v", zero, err))
	}
	return string(b)
}

var (
	responseSchemaJSON = generateSchema[responseSchema]()
	chatSchemaJSON     = generateSchema[chatSchema]()
)

type prompt struct {
	role   string
	schema string
}

func (p prompt) text() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.role))
	b.WriteString("\n\nReturn ONLY a JSON object matching this schema:\n")
	b.WriteString(p.schema)
	return b.String()
}

var (
	reviewerPrompt = prompt{
		role: `You are an AI Code Mentor reviewing a student's code.
You will receive the raw files and static analysis results (linter warnings and complexity metrics).
Explain these static findings conceptually to a student and identify architectural flaws.
Put a general summary of improvements in "insights".`,
		schema: responseSchemaJSON,
	}
	securityPrompt = prompt{
		role: `You are a Security Sentinel scanning student code.
Focus ONLY on vulnerabilities. Propose secure replacements in "actions" where you can.`,
		schema: responseSchemaJSON,
	}
	debugPrompt = prompt{
		role: `You are an Auto-Fix Debug Agent.
Analyze the provided code and the stack trace in extra_context.stack_trace.
Explain the root cause in "feedback" and put a fixed version of each file that will pass the tests in "actions".`,
		schema: responseSchemaJSON,
	}
	chatPrompt = prompt{
		role: `You are an AI Code Mentor embedded in the student's IDE.
Answer the user_message using the current file, the selected code and the project tree.
When a concrete edit helps, choose modify_file, create_file or insert_code and put the code in "code".
Otherwise answer with explain_only.`,
		schema: chatSchemaJSON,
	}
)
