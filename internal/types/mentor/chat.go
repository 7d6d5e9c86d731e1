package mentor

// ChatRequest is an IDE chat turn with the editor state that accompanies it.
type ChatRequest struct {
	UserMessage        string `json:"user_message"`
	CurrentFileContent string `json:"current_file_content"`
	CurrentFilePath    string `json:"current_file_path"`
	FullProjectTree    string `json:"full_project_tree"`
	SelectedCode       string `json:"selected_code"`
}

type ChatActionKind string

const (
	ChatModifyFile  ChatActionKind = "modify_file"
	ChatCreateFile  ChatActionKind = "create_file"
	ChatInsertCode  ChatActionKind = "insert_code"
	ChatExplainOnly ChatActionKind = "explain_only"
)

func (k ChatActionKind) Valid() bool {
	switch k {
	case ChatModifyFile, ChatCreateFile, ChatInsertCode, ChatExplainOnly:
		return true
	}
	return false
}

// ChatAction is the structured reply to a ChatRequest.
type ChatAction struct {
	Action      ChatActionKind `json:"action"`
	TargetFile  string         `json:"target_file"`
	Code        string         `json:"code"`
	Explanation string         `json:"explanation"`
}

// ExplainOnly is the fallback action when nothing actionable came back.
func ExplainOnly(explanation string) ChatAction {
	return ChatAction{Action: ChatExplainOnly, Explanation: explanation}
}
