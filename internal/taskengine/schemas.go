package taskengine

import "encoding/json"

// Output schemas for each LLM phase, matching the field names the prompt
// bundles in internal/llm/prompts describe.
// One literal per phase rather than a shared builder: the fields genuinely
// differ per phase and the façade must not drift from the field names —
// keeping each schema as its own literal
// makes a field rename a one-line diff instead of a shared-helper edit.

var analystSchema = json.RawMessage(`{
	"type": "object",
	"required": ["is_splittable", "thinking"],
	"properties": {
		"is_splittable": {"type": "boolean"},
		"name": {"type": "string"},
		"expect_execute_time": {"type": "string"},
		"keywords": {"type": "array", "items": {"type": "string"}},
		"prd": {"type": "string"},
		"thinking": {"type": "string"}
	}
}`)

var plannerSchema = json.RawMessage(`{
	"type": "object",
	"required": ["process", "thinking"],
	"properties": {
		"process": {"type": "string"},
		"thinking": {"type": "string"}
	}
}`)

var refactorSchema = json.RawMessage(`{
	"type": "object",
	"required": ["name", "expect_execute_time", "keywords", "prd", "thinking"],
	"properties": {
		"name": {"type": "string"},
		"expect_execute_time": {"type": "string"},
		"keywords": {"type": "array", "items": {"type": "string"}},
		"prd": {"type": "string"},
		"thinking": {"type": "string"}
	}
}`)

var unitGeneratorSchema = json.RawMessage(`{
	"type": "object",
	"required": ["unit_list", "thinking"],
	"properties": {
		"unit_list": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "objective"],
				"properties": {
					"name": {"type": "string"},
					"objective": {"type": "string"}
				}
			}
		},
		"thinking": {"type": "string"}
	}
}`)

var unitExecutorSchema = json.RawMessage(`{
	"type": "object",
	"required": ["output", "thinking"],
	"properties": {
		"output": {"type": "string"},
		"thinking": {"type": "string"}
	}
}`)

var nextStateSchema = json.RawMessage(`{
	"type": "object",
	"required": ["process", "state", "thinking"],
	"properties": {
		"process": {"type": "string"},
		"state": {"type": "string", "enum": ["ACTIVATING", "WAITING", "SCHEDULING", "FINISHED", "FAILED"]},
		"notify_user": {"type": "string"},
		"replenish": {"type": "array", "items": {"type": "string"}},
		"next_execute_time": {"type": "string"},
		"thinking": {"type": "string"}
	}
}`)

var waitingHandlerSchema = json.RawMessage(`{
	"type": "object",
	"required": ["process", "thinking"],
	"properties": {
		"process": {"type": "string"},
		"thinking": {"type": "string"}
	}
}`)

var resultSynthesiserSchema = json.RawMessage(`{
	"type": "object",
	"required": ["result", "thinking"],
	"properties": {
		"result": {"type": "string"},
		"thinking": {"type": "string"}
	}
}`)

// analystOutput, plannerOutput, ... are the Go-side decoded shapes of each
// schema above.

type analystOutput struct {
	IsSplittable      bool     `json:"is_splittable"`
	Name              string   `json:"name"`
	ExpectExecuteTime string   `json:"expect_execute_time"`
	Keywords          []string `json:"keywords"`
	PRD               string   `json:"prd"`
	Thinking          string   `json:"thinking"`
}

type plannerOutput struct {
	Process  string `json:"process"`
	Thinking string `json:"thinking"`
}

type refactorOutput struct {
	Name              string   `json:"name"`
	ExpectExecuteTime string   `json:"expect_execute_time"`
	Keywords          []string `json:"keywords"`
	PRD               string   `json:"prd"`
	Thinking          string   `json:"thinking"`
}

type unitSpec struct {
	Name      string `json:"name"`
	Objective string `json:"objective"`
}

type unitGeneratorOutput struct {
	UnitList []unitSpec `json:"unit_list"`
	Thinking string     `json:"thinking"`
}

type unitExecutorOutput struct {
	Output   string `json:"output"`
	Thinking string `json:"thinking"`
}

type nextStateOutput struct {
	Process         string   `json:"process"`
	State           string   `json:"state"`
	NotifyUser      string   `json:"notify_user"`
	Replenish       []string `json:"replenish"`
	NextExecuteTime string   `json:"next_execute_time"`
	Thinking        string   `json:"thinking"`
}

type waitingHandlerOutput struct {
	Process  string `json:"process"`
	Thinking string `json:"thinking"`
}

type resultSynthesiserOutput struct {
	Result   string `json:"result"`
	Thinking string `json:"thinking"`
}
