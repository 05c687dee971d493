package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"agentgate/internal/domain"
)

const fileHandlingContract = `IMPORTANT FILE HANDLING:
- You have access to tools for file handling: ` + "`list_uploaded_files`" + ` and ` + "`get_file_content`" + `.
- ` + "`list_uploaded_files`" + ` gets a list of all uploaded files (PDF and Excel). It requires the ` + "`thread_id`" + `.
- ` + "`get_file_content`" + ` retrieves content from a specific file. It requires both a ` + "`file_id`" + ` and the ` + "`thread_id`" + `.
- The ` + "`thread_id`" + ` is available in the user information context.
- Supported file types: PDF documents and Excel spreadsheets (.xlsx, .xls).
- If the user asks about files, documents, PDFs, Excel, spreadsheets, you MUST:
  1. First, call the ` + "`list_uploaded_files`" + ` tool with the current ` + "`thread_id`" + ` to get the list of file metadata (file_id, name, type).
  2. Then, call ` + "`get_file_content`" + ` with the appropriate ` + "`file_id`" + ` and ` + "`thread_id`" + ` to retrieve the content.
  3. If multiple files are uploaded and the user is vague, ask for clarification on which file to analyze.
  4. Finally, answer the user's question based on the retrieved content.
- Never ask the user for the file_id or thread_id - you have access to this information.
- When multiple files are present, reference them by filename and type for clarity.
- For Excel files, the content includes sheet names, column names, row counts, and data preview.`

// systemPrompt builds the per-cycle system instruction. The file handling
// contract is attached only when the file tools are actually offered this
// cycle, so an anonymous user's model never sees instructions it cannot
// follow.
func systemPrompt(identity domain.Identity, threadID string, proverbs []string, hasFileTools bool) string {
	var userInfo string
	if identity.Authenticated() {
		name := identity.Name
		if name == "" {
			name = "Unknown"
		}
		email := identity.Email
		if email == "" {
			email = "not provided"
		}
		role := identity.Role
		if role == "" {
			role = "user"
		}
		userInfo = fmt.Sprintf(
			"The current user is %s (ID: %s, Email: %s, Role: %s). The current conversation thread_id is %s.",
			name, identity.UserID, email, role, threadID,
		)
	} else {
		userInfo = "The user is not authenticated. Certain tools like file handling are unavailable. " +
			"If asked about files or to perform actions requiring login, inform the user they need to sign in."
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant.\n")
	b.WriteString(userInfo)
	b.WriteString("\nWhen asked about the current user's identity (e.g., 'who am I?'), provide the user's details from the information above.\n")
	b.WriteString(fmt.Sprintf("The current proverbs are %s.", renderProverbs(proverbs)))
	if hasFileTools {
		b.WriteString("\n\n")
		b.WriteString(fileHandlingContract)
	}
	return b.String()
}

func renderProverbs(proverbs []string) string {
	if len(proverbs) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(proverbs)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
