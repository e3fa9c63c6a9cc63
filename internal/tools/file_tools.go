package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"

	"github.com/omaremad10/nivuus-agent/internal/memory"
	"github.com/omaremad10/nivuus-agent/internal/paths"
)

// FileTools provides direct file read, write and listing.
type FileTools struct {
	resolver     *paths.Resolver
	maxReadBytes int64

	confirm  Confirmer
	recorder Recorder
	logger   *slog.Logger
}

// NewFileTools creates a new FileTools instance. A nil resolver
// resolves paths against the working directory.
func NewFileTools(resolver *paths.Resolver, maxReadBytes int64, confirm Confirmer, rec Recorder, logger *slog.Logger) *FileTools {
	if maxReadBytes <= 0 {
		maxReadBytes = 100 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTools{
		resolver:     resolver,
		maxReadBytes: maxReadBytes,
		confirm:      confirm,
		recorder:     rec,
		logger:       logger.With("component", "file_tools"),
	}
}

// Tools returns read_file, list_directory and write_file.
func (ft *FileTools) Tools() []*Tool {
	return []*Tool{
		{
			Name:        "read_file",
			Description: "Read the content of a text file. Binary files and files over the size limit are refused.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filepath": map[string]any{
						"type":        "string",
						"description": "Path to the file, absolute or relative to the working directory",
					},
				},
				"required": []string{"filepath"},
			},
			Handler: ft.handleRead,
		},
		{
			Name:        "list_directory",
			Description: "List the entries of a directory. Directories are shown with a trailing slash.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"directoryPath": map[string]any{
						"type":        "string",
						"description": "Path to the directory",
					},
				},
				"required": []string{"directoryPath"},
			},
			Handler: ft.handleList,
		},
		{
			Name:        "write_file",
			Description: "Write content to a file, replacing it if it exists. The operator is asked to confirm first.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filepath": map[string]any{
						"type":        "string",
						"description": "Path to the file",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Full content to write",
					},
				},
				"required": []string{"filepath", "content"},
			},
			Handler: ft.handleWrite,
		},
	}
}

// Read returns the content of a regular text file no larger than the
// configured limit.
func (ft *FileTools) Read(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file")
	}
	if info.Size() > ft.maxReadBytes {
		return "", fmt.Errorf("file too large (%d bytes, limit %d)", info.Size(), ft.maxReadBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// The file may have grown since Stat.
	data, err := io.ReadAll(io.LimitReader(f, ft.maxReadBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > ft.maxReadBytes {
		return "", fmt.Errorf("file too large (limit %d bytes)", ft.maxReadBytes)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("file appears to be binary")
	}
	return string(data), nil
}

func (ft *FileTools) handleRead(_ context.Context, args map[string]any) (string, error) {
	absPath, err := ft.resolver.Resolve(stringArg(args, "filepath"))
	if err != nil {
		return "", err
	}
	ft.recorder.Record("DirectRead", absPath, memory.StatusAttempted, "")

	content, err := ft.Read(absPath)
	if err != nil {
		ft.logger.Warn("read failed", "path", absPath, "error", err)
		ft.recorder.Record("DirectRead", absPath, memory.StatusFailure, err.Error())
		return fmt.Sprintf("Error reading file %s: %v", absPath, err), nil
	}

	ft.logger.Debug("file read", "path", absPath, "bytes", len(content))
	ft.recorder.Record("DirectRead", absPath, memory.StatusSuccess, "")
	return fmt.Sprintf("Content of file %s:\n%s", absPath, content), nil
}

func (ft *FileTools) handleList(_ context.Context, args map[string]any) (string, error) {
	absPath, err := ft.resolver.Resolve(stringArg(args, "directoryPath"))
	if err != nil {
		return "", err
	}
	ft.recorder.Record("ListDirectory", absPath, memory.StatusAttempted, "")

	listing, err := listDirectory(absPath)
	if err != nil {
		ft.recorder.Record("ListDirectory", absPath, memory.StatusFailure, err.Error())
		return fmt.Sprintf("Error listing directory %s: %v", absPath, err), nil
	}

	ft.recorder.Record("ListDirectory", absPath, memory.StatusSuccess, "")
	return listing, nil
}

func listDirectory(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contents of directory %s:\n", dir)
	if len(entries) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		fmt.Fprintf(&b, "- %s%s\n", e.Name(), suffix)
	}
	return strings.TrimSpace(b.String()), nil
}

func (ft *FileTools) handleWrite(ctx context.Context, args map[string]any) (string, error) {
	absPath, err := ft.resolver.Resolve(stringArg(args, "filepath"))
	if err != nil {
		return "", err
	}
	content := stringArg(args, "content")
	ft.recorder.Record("File Write", absPath, memory.StatusAttempted, "")

	snippet := content
	if len(snippet) > 200 {
		snippet = truncateRunes(snippet, 200) + "..."
	}
	question := fmt.Sprintf("Proposed write to: %s\nContent:\n%s\nWrite this file?", absPath, snippet)
	ok, err := ft.confirm.Confirm(ctx, question)
	if err != nil {
		return "", fmt.Errorf("confirmation: %w", err)
	}
	if !ok {
		ft.recorder.Record("File Write", absPath, memory.StatusCancelled, "")
		return "File write cancelled by user.", nil
	}

	if err := writeFile(absPath, content); err != nil {
		ft.logger.Warn("write failed", "path", absPath, "error", err)
		ft.recorder.Record("File Write", absPath, memory.StatusFailure, err.Error())
		return fmt.Sprintf("Error: Error writing file %s: %v", absPath, err), nil
	}

	ft.logger.Info("file written", "path", absPath, "bytes", len(content))
	ft.recorder.Record("File Write", absPath, memory.StatusSuccess, "")
	return fmt.Sprintf("File written successfully to %s.", absPath), nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	return atomicwriter.WriteFile(path, []byte(content), 0o644)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
