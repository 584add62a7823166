package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/personagen/internal/contract"
	"github.com/apresai/personagen/internal/gateway"
	"github.com/apresai/personagen/internal/persona"
)

var tracer = otel.Tracer("personagen-mcp")

func stringParam(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func listParam(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name: "generate_persona",
			Description: "Generate an ideal-client persona for a therapist. Returns the persona, its quality score and " +
				"the validation issues. With async=true it returns a task_id immediately; use get_persona to fetch the result.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"name":          stringParam("Therapist name"),
					"focus":         stringParam("Clinical focus, e.g. anxiety"),
					"target_client": stringParam("Who the therapist wants to work with, e.g. adults, parents of teens"),
					"years": map[string]any{
						"type":        "integer",
						"description": "Years of practice",
					},
					"energizing": listParam("Client qualities that energize the therapist"),
					"draining":   listParam("Client qualities that drain the therapist"),
					"topics":     listParam("Topics the therapist loves discussing"),
					"framing":    stringParam("Client framing: adult or parent. Inferred from target_client when empty"),
					"model": map[string]any{
						"type":        "string",
						"description": "Model: " + strings.Join(gateway.ModelNames(), ", "),
					},
					"contract":    stringParam("Contract name: default, or a contract published in the server's contract directory. Omit for the server default"),
					"max_retries": map[string]any{"type": "integer", "description": "Regeneration retries; defaults to the contract value"},
					"summary": map[string]any{
						"type":        "boolean",
						"description": "Also write the therapist-facing summary",
						"default":     true,
					},
					"async": map[string]any{
						"type":        "boolean",
						"description": "Run in the background and return a task_id",
						"default":     false,
					},
					"anthropic_api_key": stringParam("Your Anthropic API key (Claude models) if the server has no default key"),
					"gemini_api_key":    stringParam("Your Gemini API key (gemini models) if the server has no default key"),
					"openai_api_key":    stringParam("Your OpenAI API key (gpt models) if the server has no default key"),
				},
				Required: []string{"name", "focus", "target_client"},
			},
		},
		{
			Name:        "get_persona",
			Description: "Get the status and result of a background persona generation by task ID.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"task_id": stringParam("The task ID returned from generate_persona"),
				},
				Required: []string{"task_id"},
			},
		},
		{
			Name:        "cancel_persona",
			Description: "Cancel a background persona generation by task ID. The task is reported as failed with kind canceled.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"task_id": stringParam("The task ID returned from generate_persona"),
				},
				Required: []string{"task_id"},
			},
		},
		{
			Name:        "validate_persona",
			Description: "Extract, normalize and score raw model output against a content contract without calling a model.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"raw_text": stringParam("Raw persona text containing the section markers"),
					"contract": stringParam("Contract name: default, or a contract published in the server's contract directory. Omit for the server default"),
				},
				Required: []string{"raw_text"},
			},
		},
		{
			Name:        "show_contract",
			Description: "Return the resolved content contract as YAML.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"contract": stringParam("Contract name: default, or a contract published in the server's contract directory. Omit for the server default"),
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	tasks     *TaskManager
	contracts *contract.Catalog
	log       *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(tasks *TaskManager, contracts *contract.Catalog, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, contracts: contracts, log: logger}
}

// HandleGeneratePersona runs a generation, synchronously unless async is set.
func (h *Handlers) HandleGeneratePersona(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_persona")
	defer span.End()

	genReq := GenerateRequest{
		Persona: persona.Request{
			Name:         mcp.ParseString(req, "name", ""),
			Focus:        mcp.ParseString(req, "focus", ""),
			TargetClient: mcp.ParseString(req, "target_client", ""),
			Years:        parseIntParam(req, "years", 0),
			Energizing:   parseListParam(req, "energizing"),
			Draining:     parseListParam(req, "draining"),
			Topics:       parseListParam(req, "topics"),
			Framing:      mcp.ParseString(req, "framing", ""),
		},
		Model:           mcp.ParseString(req, "model", ""),
		Contract:        mcp.ParseString(req, "contract", ""),
		MaxRetries:      parseRetriesParam(req, "max_retries"),
		Summary:         parseBoolParam(req, "summary", true),
		AnthropicAPIKey: mcp.ParseString(req, "anthropic_api_key", ""),
		GeminiAPIKey:    mcp.ParseString(req, "gemini_api_key", ""),
		OpenAIAPIKey:    mcp.ParseString(req, "openai_api_key", ""),
	}
	async := parseBoolParam(req, "async", false)

	span.SetAttributes(
		attribute.String("model", genReq.Model),
		attribute.String("contract", genReq.Contract),
		attribute.Bool("async", async),
	)

	if err := genReq.Persona.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return mcp.NewToolResultError(fmt.Sprintf("invalid request: %v", err)), nil
	}
	if genReq.Model != "" && !gateway.IsValidModel(genReq.Model) {
		span.SetStatus(codes.Error, "unknown model")
		return mcp.NewToolResultError(fmt.Sprintf("unknown model %q (valid: %s)", genReq.Model, strings.Join(gateway.ModelNames(), ", "))), nil
	}

	if async {
		id, err := h.tasks.StartTask(ctx, genReq)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "start task failed")
			return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
		}
		span.SetAttributes(attribute.String("task_id", id))
		h.log.InfoContext(ctx, "Persona generation started", "task_id", id, "therapist", genReq.Persona.Name)
		return jsonResult(map[string]any{
			"task_id": id,
			"status":  TaskRunning,
			"message": "Persona generation started. Use get_persona with this task_id to fetch the result.",
		})
	}

	res, err := h.tasks.Generate(ctx, genReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return errorResult(err), nil
	}
	span.SetAttributes(attribute.String("request_id", res.RequestID), attribute.Int("score", res.Validation.Score))
	return jsonResult(res)
}

// HandleGetPersona returns a background task's status and result.
func (h *Handlers) HandleGetPersona(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := tracer.Start(ctx, "tool.get_persona")
	defer span.End()

	id := mcp.ParseString(req, "task_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing task_id")
		return mcp.NewToolResultError("task_id is required"), nil
	}
	span.SetAttributes(attribute.String("task_id", id))

	task, ok := h.tasks.GetTask(id)
	if !ok {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("task %s not found", id)), nil
	}
	return jsonResult(task)
}

// HandleCancelPersona cancels a running background task.
func (h *Handlers) HandleCancelPersona(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.cancel_persona")
	defer span.End()

	id := mcp.ParseString(req, "task_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing task_id")
		return mcp.NewToolResultError("task_id is required"), nil
	}
	span.SetAttributes(attribute.String("task_id", id))

	if _, ok := h.tasks.GetTask(id); !ok {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("task %s not found", id)), nil
	}
	if !h.tasks.CancelTask(id) {
		task, _ := h.tasks.GetTask(id)
		return jsonResult(map[string]any{
			"task_id":  id,
			"status":   task.Status,
			"canceled": false,
			"message":  "Task already finished.",
		})
	}
	h.log.InfoContext(ctx, "Persona generation canceled", "task_id", id)
	return jsonResult(map[string]any{
		"task_id":  id,
		"canceled": true,
		"message":  "Cancellation requested. Use get_persona to confirm the task stopped.",
	})
}

// HandleValidatePersona scores raw text offline.
func (h *Handlers) HandleValidatePersona(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.validate_persona")
	defer span.End()

	raw := mcp.ParseString(req, "raw_text", "")
	if strings.TrimSpace(raw) == "" {
		span.SetStatus(codes.Error, "missing raw_text")
		return mcp.NewToolResultError("raw_text is required"), nil
	}

	c, err := h.contract(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, "unknown contract")
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, fixes := persona.NewNormalizer().Normalize(persona.NewExtractor(c).Extract(raw))
	v := persona.NewValidator(c).Validate(p)
	span.SetAttributes(attribute.Int("score", v.Score), attribute.Bool("accepted", v.Accepted))

	return jsonResult(map[string]any{
		"persona":          p.Card(),
		"validation":       v,
		"fixes":            fixes,
		"contract_version": c.Version,
	})
}

// HandleShowContract returns the resolved contract as YAML.
func (h *Handlers) HandleShowContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.show_contract")
	defer span.End()

	c, err := h.contract(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, "unknown contract")
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := contract.Marshal(c)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal contract: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// contract resolves the call's contract name. The returned error is safe
// to show callers; the cause is only logged.
func (h *Handlers) contract(ctx context.Context, req mcp.CallToolRequest) (*contract.Contract, error) {
	name := mcp.ParseString(req, "contract", "")
	c, err := h.contracts.Get(ctx, name)
	if err != nil {
		logContractError(ctx, h.log, name, err)
		return nil, err
	}
	return c, nil
}

func logContractError(ctx context.Context, log *slog.Logger, name string, err error) {
	var unknown *contract.UnknownError
	if errors.As(err, &unknown) && unknown.Cause != nil {
		err = unknown.Cause
	}
	log.WarnContext(ctx, "Contract lookup failed", "contract", name, "error", err)
}

// errorResult reports a failed generation with its machine-readable kind.
func errorResult(err error) *mcp.CallToolResult {
	kind := gateway.KindOf(err)
	if errors.Is(err, ErrBusy) {
		kind = "busy"
	}
	data, _ := json.Marshal(map[string]any{"error": err.Error(), "kind": kind})
	return mcp.NewToolResultError(string(data))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

// parseRetriesParam returns nil when key is absent or negative so the
// contract value applies.
func parseRetriesParam(req mcp.CallToolRequest, key string) *int {
	n := parseIntParam(req, key, -1)
	if n < 0 {
		return nil
	}
	return &n
}

func parseBoolParam(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	args := req.GetArguments()
	if v, ok := args[key].(bool); ok {
		return v
	}
	return defaultVal
}

// parseListParam accepts a JSON array of strings or a comma-separated string.
func parseListParam(req mcp.CallToolRequest, key string) []string {
	args := req.GetArguments()
	var out []string
	switch v := args[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
