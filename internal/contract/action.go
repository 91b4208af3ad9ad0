package contract

// ActionVariant is the wire name of an outbound action variant.
type ActionVariant string

const (
	VariantRunCommand     ActionVariant = "runCommand"
	VariantRunReadFile    ActionVariant = "runReadFile"
	VariantRunReadFiles   ActionVariant = "runReadFiles"
	VariantRunWriteFile   ActionVariant = "runWriteFile"
	VariantRunEditFile    ActionVariant = "runEditFile"
	VariantRunHTTPRequest ActionVariant = "runHTTPRequest"
	VariantRunGitCommand  ActionVariant = "runGitCommand"
	VariantListDirectory  ActionVariant = "listDirectory"
	VariantGrep           ActionVariant = "grep"
	VariantFindFiles      ActionVariant = "findFiles"
	VariantRunMCPTool     ActionVariant = "runMCPTool"
	VariantMkdir          ActionVariant = "mkdir"
	VariantNewCheckpoint  ActionVariant = "newCheckpoint"
)

// Variants lists every action variant the protocol can emit.
func Variants() []ActionVariant {
	return []ActionVariant{
		VariantRunCommand,
		VariantRunReadFile,
		VariantRunReadFiles,
		VariantRunWriteFile,
		VariantRunEditFile,
		VariantRunHTTPRequest,
		VariantRunGitCommand,
		VariantListDirectory,
		VariantGrep,
		VariantFindFiles,
		VariantRunMCPTool,
		VariantMkdir,
		VariantNewCheckpoint,
	}
}

// ActionPayload is the closed set of outbound action variants.
type ActionPayload interface {
	// ActionVariant returns the wire name of the variant.
	ActionVariant() ActionVariant
	// ToolName returns the tool identifier used for security policy lookup.
	ToolName() string
}

// Action is the outbound envelope. RequestID is assigned by the server and
// unique within a session.
type Action struct {
	RequestID string
	Payload   ActionPayload
}

// RunCommand executes a shell program on the client.
type RunCommand struct {
	Program   string   `json:"program"`
	Arguments []string `json:"arguments,omitempty"`
	Flags     []string `json:"flags,omitempty"`
}

// ReadFile reads a single file.
type ReadFile struct {
	Filepath string `json:"filepath"`
}

// ReadFiles reads several files in one round-trip.
type ReadFiles struct {
	Filepaths []string `json:"filepaths"`
}

// WriteFile creates or replaces a file with the given contents.
type WriteFile struct {
	Filepath string `json:"filepath"`
	Contents string `json:"contents"`
}

// EditFile replaces one occurrence of OldString with NewString.
type EditFile struct {
	Filepath  string `json:"filepath"`
	OldString string `json:"oldString"`
	NewString string `json:"newString"`
}

// RunHTTPRequest performs an HTTP call from the client's network position.
type RunHTTPRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   string `json:"body,omitempty"`
}

// RunGitCommand runs a git subcommand in the named repository.
type RunGitCommand struct {
	Command       string `json:"command"`
	Arguments     string `json:"arguments,omitempty"`
	RepositoryURL string `json:"repository_url,omitempty"`
}

// ListDirectory lists the entries of a directory.
type ListDirectory struct {
	Directory string `json:"directory"`
}

// Grep searches file contents under a directory.
type Grep struct {
	Pattern         string `json:"pattern"`
	SearchDirectory string `json:"search_directory,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
}

// FindFiles matches file names against a glob pattern.
type FindFiles struct {
	NamePattern string `json:"name_pattern"`
}

// RunMCPTool invokes a client-registered MCP tool by name.
type RunMCPTool struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

// Mkdir creates a directory relative to the workspace root.
type Mkdir struct {
	DirectoryPath string `json:"directory_path"`
}

// NewCheckpoint notifies the client that workflow progress was checkpointed.
type NewCheckpoint struct {
	Status     string          `json:"status"`
	Checkpoint string          `json:"checkpoint"`
	Goal       string          `json:"goal,omitempty"`
	Errors     []WorkflowError `json:"errors,omitempty"`
}

// WorkflowError is a structured error entry accumulated by a session.
type WorkflowError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (*RunCommand) ActionVariant() ActionVariant     { return VariantRunCommand }
func (*ReadFile) ActionVariant() ActionVariant       { return VariantRunReadFile }
func (*ReadFiles) ActionVariant() ActionVariant      { return VariantRunReadFiles }
func (*WriteFile) ActionVariant() ActionVariant      { return VariantRunWriteFile }
func (*EditFile) ActionVariant() ActionVariant       { return VariantRunEditFile }
func (*RunHTTPRequest) ActionVariant() ActionVariant { return VariantRunHTTPRequest }
func (*RunGitCommand) ActionVariant() ActionVariant  { return VariantRunGitCommand }
func (*ListDirectory) ActionVariant() ActionVariant  { return VariantListDirectory }
func (*Grep) ActionVariant() ActionVariant           { return VariantGrep }
func (*FindFiles) ActionVariant() ActionVariant      { return VariantFindFiles }
func (*RunMCPTool) ActionVariant() ActionVariant     { return VariantRunMCPTool }
func (*Mkdir) ActionVariant() ActionVariant          { return VariantMkdir }
func (*NewCheckpoint) ActionVariant() ActionVariant  { return VariantNewCheckpoint }

func (*RunCommand) ToolName() string     { return "run_command" }
func (*ReadFile) ToolName() string       { return "read_file" }
func (*ReadFiles) ToolName() string      { return "read_files" }
func (*WriteFile) ToolName() string      { return "create_file_with_contents" }
func (*EditFile) ToolName() string       { return "edit_file" }
func (*RunHTTPRequest) ToolName() string { return "run_http_request" }
func (*RunGitCommand) ToolName() string  { return "run_git_command" }
func (*ListDirectory) ToolName() string  { return "list_dir" }
func (*Grep) ToolName() string           { return "grep" }
func (*FindFiles) ToolName() string      { return "find_files" }
func (*Mkdir) ToolName() string          { return "mkdir" }
func (*NewCheckpoint) ToolName() string  { return "new_checkpoint" }

// ToolName for MCP tools is the client-registered tool's own name, so the
// security policy can target individual MCP tools.
func (t *RunMCPTool) ToolName() string { return t.Name }
