package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"agentgate/internal/contentstore"
	"agentgate/internal/domain"
)

// listFilesResult is the payload list_uploaded_files hands back to the model.
type listFilesResult struct {
	Count   int                   `json:"count"`
	Files   []domain.FileMetadata `json:"files"`
	Message string                `json:"message"`
}

func listUploadedFilesTool(files contentstore.Client) Tool {
	return Tool{
		Definition: domain.ToolDefinition{
			Name:        "list_uploaded_files",
			Description: "List the files uploaded to the current conversation thread. Use this before retrieving file content to discover file ids.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"thread_id": map[string]interface{}{
						"type":        "string",
						"description": "The id of the current conversation thread.",
					},
				},
				"required": []string{"thread_id"},
			},
		},
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			threadID := stringArg(args, "thread_id")
			if threadID == "" {
				return "Error: thread_id is missing. Cannot list files.", nil
			}
			listed, err := files.ListFiles(ctx, threadID)
			if err != nil {
				return fmt.Sprintf("An unexpected error occurred while listing files: %v", err), nil
			}
			if len(listed) == 0 {
				return "No files are currently uploaded.", nil
			}
			payload := listFilesResult{
				Count: len(listed),
				Files: listed,
				Message: fmt.Sprintf(
					"%d file(s) found. Use the 'get_file_content' tool with a file_id to retrieve content.",
					len(listed),
				),
			}
			encoded, err := json.Marshal(payload)
			if err != nil {
				return fmt.Sprintf("An unexpected error occurred while listing files: %v", err), nil
			}
			return string(encoded), nil
		},
	}
}

func getFileContentTool(files contentstore.Client) Tool {
	return Tool{
		Definition: domain.ToolDefinition{
			Name:        "get_file_content",
			Description: "Retrieve the extracted content of an uploaded file by its file_id. Call list_uploaded_files first to find the id.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"thread_id": map[string]interface{}{
						"type":        "string",
						"description": "The id of the current conversation thread.",
					},
					"file_id": map[string]interface{}{
						"type":        "string",
						"description": "The id of the file to retrieve.",
					},
				},
				"required": []string{"thread_id", "file_id"},
			},
		},
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			threadID := stringArg(args, "thread_id")
			if threadID == "" {
				return "Error: thread_id is missing. Cannot retrieve file.", nil
			}
			fileID := stringArg(args, "file_id")
			if fileID == "" {
				return "Error: file_id is missing. Cannot retrieve file.", nil
			}
			record, err := files.GetFile(ctx, threadID, fileID)
			if errors.Is(err, contentstore.ErrNotFound) {
				return fmt.Sprintf(
					"File with ID %s not found in thread %s. The file might have been deleted or the session expired. Please ask the user to upload the file again.",
					fileID, threadID,
				), nil
			}
			if err != nil {
				return fmt.Sprintf("An unexpected error occurred while retrieving file %s: %v", fileID, err), nil
			}
			return formatFileContent(record), nil
		},
	}
}

// formatFileContent renders a retrieved record per file type, the shape the
// model is prompted to summarize from.
func formatFileContent(record domain.FileRecord) string {
	switch record.FileType {
	case domain.FileTypePDF:
		return fmt.Sprintf(
			"PDF Content Retrieved:\n- Filename: %s\n- Total Pages: %d\n- Text Length: %d characters\n\nExtracted Text:\n%s",
			record.Filename, record.PageCount, len(record.Text), record.Text,
		)
	case domain.FileTypeExcel:
		return fmt.Sprintf(
			"Excel Content Retrieved:\n- Filename: %s\n- Total Sheets: %d\n- Total Rows: %d\n- Text Length: %d characters\n\nExtracted Content:\n%s",
			record.Filename, record.SheetCount, record.TotalRows, len(record.Text), record.Text,
		)
	default:
		return fmt.Sprintf(
			"File Content Retrieved:\n- Filename: %s\n- Text Length: %d characters\n\nExtracted Text:\n%s",
			record.Filename, len(record.Text), record.Text,
		)
	}
}
