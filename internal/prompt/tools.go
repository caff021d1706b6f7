package prompt

// Tool identifies the external AI coding assistant a prompt targets.
type Tool string

const (
	ToolCursor  Tool = "cursor"
	ToolBolt    Tool = "bolt"
	ToolV0      Tool = "v0"
	ToolLovable Tool = "lovable"
	ToolClaude  Tool = "claude"
	ToolGeneric Tool = "generic"
)

// toolProfile holds the phrasing and formatting adjustments for one target
// tool. The assembly algorithm is identical across tools; only these knobs
// differ.
type toolProfile struct {
	DisplayName   string
	SectionMarker string
	Preamble      string
	Closing       string
}

var toolProfiles = map[Tool]toolProfile{
	ToolCursor: {
		DisplayName:   "Cursor",
		SectionMarker: "##",
		Preamble:      "You are working inside Cursor. Implement the application described below step by step, creating files as needed.",
		Closing:       "Work incrementally and keep each file small and focused.",
	},
	ToolBolt: {
		DisplayName:   "Bolt",
		SectionMarker: "##",
		Preamble:      "Build the following application in Bolt. Scaffold the full project in one pass.",
		Closing:       "Generate the complete project structure before refining details.",
	},
	ToolV0: {
		DisplayName:   "v0",
		SectionMarker: "###",
		Preamble:      "Design and generate the UI described below with v0. Favor composable components.",
		Closing:       "Return each screen as a separate component.",
	},
	ToolLovable: {
		DisplayName:   "Lovable",
		SectionMarker: "##",
		Preamble:      "Create the following app in Lovable. Wire up data and navigation as described.",
		Closing:       "Keep the design consistent across all screens.",
	},
	ToolClaude: {
		DisplayName:   "Claude",
		SectionMarker: "##",
		Preamble:      "Implement the application specified below. Ask no questions; make reasonable assumptions and state them.",
		Closing:       "Produce complete, runnable code for every part of the specification.",
	},
	ToolGeneric: {
		DisplayName:   "your AI coding assistant",
		SectionMarker: "##",
		Preamble:      "Implement the application described below.",
		Closing:       "Follow the specification closely.",
	},
}

// ProfileFor returns the tool profile, falling back to the generic one for
// unknown tools.
func ProfileFor(tool Tool) toolProfile {
	if p, ok := toolProfiles[tool]; ok {
		return p
	}
	return toolProfiles[ToolGeneric]
}

func (t Tool) Valid() bool {
	_, ok := toolProfiles[t]
	return ok
}
