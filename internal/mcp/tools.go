package mcp

import "github.com/mark3labs/mcp-go/mcp"

var currentToolDef = mcp.NewTool("anno_current",
	mcp.WithDescription("Return the text under the cursor with its effective labels (a staged selection if one exists, else the stored labels), plus progress."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var categoriesToolDef = mcp.NewTool("anno_categories",
	mcp.WithDescription("List the category vocabulary, sorted."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var setLabelsToolDef = mcp.NewTool("anno_set_labels",
	mcp.WithDescription("Stage a label selection for one or more texts. The selection is committed to the annotation map on the next navigate or save. An empty list clears the labels."),
	mcp.WithArray("labels",
		mcp.Required(),
		mcp.Description("Labels to select, in order"),
		mcp.Items(map[string]any{"type": "string"}),
	),
	mcp.WithArray("ids",
		mcp.Description("Text ids to label (default: the current text)"),
		mcp.Items(map[string]any{"type": "string"}),
	),
)

var navigateToolDef = mcp.NewTool("anno_navigate",
	mcp.WithDescription("Commit staged selections, then move the cursor. Use delta (+1/-1), an absolute index, or a text id. Moves past either end are clamped."),
	mcp.WithNumber("delta", mcp.Description("Relative move, e.g. 1 or -1")),
	mcp.WithNumber("index", mcp.Description("Absolute 0-based position")),
	mcp.WithString("id", mcp.Description("Text id to jump to")),
)

var saveLocalToolDef = mcp.NewTool("anno_save_local",
	mcp.WithDescription("Commit staged selections and rewrite the local annotation file. Reports bytes written and annotated count."),
)

var saveRemoteToolDef = mcp.NewTool("anno_save_remote",
	mcp.WithDescription("Save locally, then upload the local file to the remote mirror (last writer wins)."),
)

var reloadRemoteToolDef = mcp.NewTool("anno_reload_remote",
	mcp.WithDescription("DESTRUCTIVE: overwrite the local annotation file with the mirror copy and reload it, discarding unsaved edits. Requires confirm=true."),
	mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
	mcp.WithDestructiveHintAnnotation(true),
)

var progressToolDef = mcp.NewTool("anno_progress",
	mcp.WithDescription("Annotated count, corpus size and percentage."),
	mcp.WithReadOnlyHintAnnotation(true),
)
