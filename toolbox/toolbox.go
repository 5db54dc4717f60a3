// Package toolbox registers the agent's default tools: shell execution,
// file I/O through the workspace runtime, web search and fetch, and
// skill loading.
package toolbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vigil-agent/vigil"
)

// Deps carries the collaborators the default tools close over.
type Deps struct {
	Runtime vigil.Runtime
	Skills  *vigil.SkillLoader
	Search  *SearchClient // nil disables web_search
	Fetcher *Fetcher      // nil disables fetch
}

// Register wires the default tools into the registry.
func Register(registry *vigil.ToolRegistry, deps Deps) error {
	type tool struct {
		name        string
		description string
		parameters  string
		handler     vigil.ToolHandler
	}

	tools := []tool{
		{
			name: "run_command",
			description: "Executes a shell command in the workspace container. " +
				"Use this tool to explore the filesystem, run scripts, or execute any shell command. " +
				"The command runs in /workspace inside the container.",
			parameters: `{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "The shell command to execute in the workspace container."}
				},
				"required": ["command"]
			}`,
			handler: func(ctx context.Context, args map[string]any) map[string]any {
				command, _ := args["command"].(string)
				return deps.Runtime.Execute(ctx, command)
			},
		},
		{
			name: "write_file",
			description: "Write content to a file in the workspace container. " +
				"The filename should be relative to /workspace or an absolute path. " +
				"Parent directories will be created if they don't exist.",
			parameters: `{
				"type": "object",
				"properties": {
					"filename": {"type": "string", "description": "Path to the file (relative to /workspace or absolute)."},
					"content": {"type": "string", "description": "The content to write."}
				},
				"required": ["filename", "content"]
			}`,
			handler: func(ctx context.Context, args map[string]any) map[string]any {
				filename, _ := args["filename"].(string)
				content, _ := args["content"].(string)
				return deps.Runtime.WriteFile(ctx, filename, content)
			},
		},
		{
			name: "read_file",
			description: "Read content from a file in the workspace container. " +
				"The filename should be relative to /workspace or an absolute path. " +
				"Returns max 200 lines. Use start_line to read further.",
			parameters: `{
				"type": "object",
				"properties": {
					"filename": {"type": "string", "description": "Path to the file (relative to /workspace or absolute)."},
					"start_line": {"type": "integer", "description": "The line number to start reading from (default: 1). Use this for pagination."},
					"limit": {"type": "integer", "description": "The maximum number of lines to read (default: 200)."}
				},
				"required": ["filename"]
			}`,
			handler: func(ctx context.Context, args map[string]any) map[string]any {
				filename, _ := args["filename"].(string)
				startLine := intArg(args, "start_line", 1)
				limit := intArg(args, "limit", 200)
				return deps.Runtime.ReadFile(ctx, filename, startLine, limit)
			},
		},
		{
			name: "edit_file",
			description: "Surgically edit a file by replacing specific blocks of text. Use this for precise code modifications.\n" +
				"Rules:\n" +
				"1. SEARCH block must match the file exactly (including indentation).\n" +
				"2. Provide just enough context in SEARCH to be unique.\n" +
				"3. If multiple changes are needed, provide multiple edit blocks.",
			parameters: `{
				"type": "object",
				"properties": {
					"filename": {"type": "string", "description": "Path to the file (relative to /workspace or absolute)."},
					"edits": {
						"type": "array",
						"description": "A list of one or more search-and-replace operations to apply sequentially.",
						"items": {
							"type": "object",
							"properties": {
								"search": {"type": "string", "description": "The exact snippet to look for. Must be a literal match, including whitespace."},
								"replace": {"type": "string", "description": "The new text to put in place of the search block."}
							},
							"required": ["search", "replace"]
						}
					}
				},
				"required": ["filename", "edits"]
			}`,
			handler: func(ctx context.Context, args map[string]any) map[string]any {
				filename, _ := args["filename"].(string)
				edits, err := parseEdits(args["edits"])
				if err != nil {
					return map[string]any{"status": "error", "message": err.Error()}
				}
				return deps.Runtime.EditFile(ctx, filename, edits)
			},
		},
		{
			name:        "use_skill",
			description: "Load instructions for a specialized skill. Use this when you identify a relevant skill from your available skills list. Skills provide detailed instructions for specific tasks.",
			parameters: `{
				"type": "object",
				"properties": {
					"skill_name": {"type": "string", "description": "The name of the skill to load."}
				},
				"required": ["skill_name"]
			}`,
			handler: func(ctx context.Context, args map[string]any) map[string]any {
				name, _ := args["skill_name"].(string)
				if deps.Skills == nil {
					return map[string]any{"status": "error", "message": fmt.Sprintf("Skill '%s' not found", name)}
				}
				instructions, err := deps.Skills.Load(name)
				if err != nil {
					return map[string]any{"status": "error", "message": fmt.Sprintf("Skill '%s' not found", name)}
				}
				return map[string]any{
					"status": "success",
					"skill": map[string]any{
						"name":         name,
						"instructions": instructions,
					},
				}
			},
		},
	}

	if deps.Search != nil {
		tools = append(tools, tool{
			name:        "web_search",
			description: "Performs a web search. Returns a list of search results with titles, URLs, and snippets.",
			parameters: `{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The search query."}
				},
				"required": ["query"]
			}`,
			handler: func(ctx context.Context, args map[string]any) map[string]any {
				query, _ := args["query"].(string)
				results, err := deps.Search.Search(ctx, query)
				if err != nil {
					return map[string]any{"status": "error", "message": err.Error()}
				}
				return map[string]any{"status": "success", "results": results}
			},
		})
	}

	if deps.Fetcher != nil {
		tools = append(tools, tool{
			name:        "fetch",
			description: "Fetches and extracts the main content from a web page. Returns the extracted text content from the URL.",
			parameters: `{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "The URL of the web page to fetch."}
				},
				"required": ["url"]
			}`,
			handler: func(ctx context.Context, args map[string]any) map[string]any {
				rawURL, _ := args["url"].(string)
				output, err := deps.Fetcher.Fetch(ctx, rawURL)
				if err != nil {
					return map[string]any{"status": "error", "message": err.Error()}
				}
				return map[string]any{"status": "success", "output": output}
			},
		})
	}

	for _, t := range tools {
		if err := registry.Register(t.name, t.description, json.RawMessage(t.parameters), t.handler); err != nil {
			return fmt.Errorf("toolbox: %w", err)
		}
	}
	return nil
}

// intArg reads an integer argument. JSON numbers decode as float64, but
// double-decoded provider arguments may already be ints.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func parseEdits(raw any) ([]vigil.FileEdit, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("edits must be a list of search/replace objects")
	}
	edits := make([]vigil.FileEdit, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("edits must be a list of search/replace objects")
		}
		search, _ := m["search"].(string)
		replace, _ := m["replace"].(string)
		edits = append(edits, vigil.FileEdit{Search: search, Replace: replace})
	}
	return edits, nil
}
