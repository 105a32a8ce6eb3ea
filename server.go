package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func NewRagServer(svc ragService, log *slog.Logger) *server.MCPServer {
	srv := server.NewMCPServer("PDF RAG", "0.1.0", server.WithToolCapabilities(false))
	tools := &ragTools{svc: svc, log: log}

	srv.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question using the currently loaded PDF document"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question about the document"),
		)), tools.ask)

	srv.AddTool(mcp.NewTool("upload",
		mcp.WithDescription("Load a local PDF file, replacing the current document"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF file on the server"),
		)), tools.upload)

	srv.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Report which document is loaded and how many chunks it has"),
	), tools.status)

	srv.AddTool(mcp.NewTool("clear",
		mcp.WithDescription("Unload the current document"),
	), tools.clear)

	return srv
}

type ragTools struct {
	svc ragService
	log *slog.Logger
}

func (t *ragTools) ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.svc.Ask(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(askResponse{
		Answer:     res.Answer,
		ChunksUsed: res.ChunksUsed,
		Document:   res.Document,
	})
}

func (t *ragTools) upload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read %s: %s", path, err)), nil
	}

	res, err := t.svc.Upload(ctx, data, filepath.Base(path))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t.log.Info("document uploaded over mcp", "path", path)

	return jsonResult(uploadResponse{
		Filename: res.Filename,
		Pages:    res.PageCount,
		Chunks:   res.ChunkCount,
		Message:  "PDF uploaded successfully!",
	})
}

func (t *ragTools) status(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := t.svc.Status()
	return jsonResult(healthResponse{
		Status:      "healthy",
		Service:     serviceName,
		PdfLoaded:   st.Loaded,
		ChunksCount: st.ChunkCount,
		Document:    st.Document,
	})
}

func (t *ragTools) clear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.svc.Clear()
	return mcp.NewToolResultText("Cleared"), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(string(raw)), nil
}
