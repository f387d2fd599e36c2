package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// NewMCPServer exposes the app as MCP tools.
func (a *App) NewMCPServer() *server.MCPServer {
	s := server.NewMCPServer(AppName, AppVersion)

	s.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Sends a message to Monsmatics in today's conversation and returns the reply."),
		mcp.WithString("text", mcp.Description("Message text")),
		mcp.WithString("image_path", mcp.Description("Optional path of an image to analyze or edit")),
		mcp.WithBoolean("edit", mcp.Description("Edit the image instead of analyzing it")),
	), a.sendMessageHandler)

	s.AddTool(mcp.NewTool("list_messages",
		mcp.WithDescription("Lists the conversation of one day."),
		mcp.WithString("date", mcp.Description("Date as YYYY-MM-DD; defaults to the selected date")),
	), a.listMessagesHandler)

	s.AddTool(mcp.NewTool("select_date",
		mcp.WithDescription("Switches the viewed day, seeding it with a welcome message."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
	), a.selectDateHandler)

	s.AddTool(mcp.NewTool("add_reminder",
		mcp.WithDescription("Adds a calendar reminder."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Reminder title")),
		mcp.WithString("time", mcp.Required(), mcp.Description("RFC 3339 time or local YYYY-MM-DDTHH:MM")),
	), a.addReminderHandler)

	s.AddTool(mcp.NewTool("delete_reminder",
		mcp.WithDescription("Deletes a reminder."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date bucket of the reminder")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
	), a.deleteReminderHandler)

	s.AddTool(mcp.NewTool("list_reminders",
		mcp.WithDescription("Lists reminders of one day, or all reminders."),
		mcp.WithString("date", mcp.Description("Date as YYYY-MM-DD; omit for every day")),
	), a.listRemindersHandler)

	s.AddTool(mcp.NewTool("get_settings",
		mcp.WithDescription("Returns the user settings."),
	), a.getSettingsHandler)

	s.AddTool(mcp.NewTool("save_settings",
		mcp.WithDescription("Changes one or more user settings."),
		mcp.WithString("language", mcp.Enum(string(English), string(Turkish))),
		mcp.WithString("theme", mcp.Enum(string(ThemeLight), string(ThemeDark), string(ThemeHighContrast))),
		mcp.WithString("temp_unit", mcp.Enum(string(Celsius), string(Fahrenheit))),
		mcp.WithString("notification_time", mcp.Description("Daily notification time as HH:MM")),
	), a.saveSettingsHandler)

	s.AddTool(mcp.NewTool("get_weather",
		mcp.WithDescription("Returns the current weather at the user's location."),
	), a.getWeatherHandler)

	s.AddTool(mcp.NewTool("search_history",
		mcp.WithDescription("Searches past conversations by meaning."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
	), a.searchHistoryHandler)

	s.AddTool(mcp.NewTool("export_data",
		mcp.WithDescription("Exports settings, conversations and reminders as JSON."),
	), a.exportDataHandler)

	s.AddTool(mcp.NewTool("import_data",
		mcp.WithDescription("Merges a JSON export into the stored data. Existing ids are kept."),
		mcp.WithString("json_data", mcp.Required(), mcp.Description("JSON produced by export_data")),
	), a.importDataHandler)

	return s
}

// ServeMCP serves the tools over stdio until the client disconnects.
func (a *App) ServeMCP() error {
	a.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(a.NewMCPServer())
}

func toolArgs(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (a *App) sendMessageHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(request)
	req := SendRequest{Text: stringArg(args, "text")}
	req.Edit, _ = args["edit"].(bool)
	if path := stringArg(args, "image_path"); path != "" {
		img, err := LoadImage(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.Image = img
	}

	reply, err := a.chat.Send(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Send failed: %v", err)), nil
	}
	text := FormatMessage(a.state.Language(), *reply)
	if reply.Image != nil {
		path, err := SaveImage(filepath.Join(a.cfg.DataDir, "images"), reply.ID, reply.Image)
		if err != nil {
			a.logger.Warn("failed to save edited image", zap.Error(err))
		} else {
			text += "\n  " + path
		}
	}
	return mcp.NewToolResultText(text), nil
}

func (a *App) listMessagesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date := stringArg(toolArgs(request), "date")
	if date == "" {
		date = a.state.SelectedDate()
	}
	msgs, err := a.conversations.Get(date)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read messages: %v", err)), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No messages on %s.", date)), nil
	}

	lang := a.state.Language()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", a.state.FormatDate(date))
	for _, m := range msgs {
		sb.WriteString(FormatMessage(lang, m) + "\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (a *App) selectDateHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date := stringArg(toolArgs(request), "date")
	if err := a.state.SelectDate(date); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Viewing %s.", a.state.FormatDate(date))), nil
}

func (a *App) addReminderHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(request)
	event, err := a.reminders.Add(stringArg(args, "title"), stringArg(args, "time"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(event)
}

func (a *App) deleteReminderHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(request)
	date, id := stringArg(args, "date"), stringArg(args, "id")
	if date == "" || id == "" {
		return mcp.NewToolResultError("date and id are required"), nil
	}
	if err := a.reminders.Delete(date, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder '%s' deleted.", id)), nil
}

func (a *App) listRemindersHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if date := stringArg(toolArgs(request), "date"); date != "" {
		events, err := a.reminders.ForDate(date)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(EventsByDate{date: events})
	}
	all, err := a.reminders.ListAll()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(all)
}

func (a *App) getSettingsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(a.state.Settings())
}

func (a *App) saveSettingsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(request)
	settings := a.state.Settings()
	changed := false
	for _, key := range []string{"language", "theme", "temp_unit", "notification_time"} {
		value := stringArg(args, key)
		if value == "" {
			continue
		}
		var err error
		if settings, err = ApplySetting(settings, key, value); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		changed = true
	}
	if !changed {
		return mcp.NewToolResultError("No settings given"), nil
	}
	if err := a.state.SaveSettings(settings); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(settings)
}

func (a *App) getWeatherHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if a.state.Location() == nil {
		return mcp.NewToolResultError("Location unknown; set MONSMATICS_LOCATION"), nil
	}
	data := a.weather.Refresh(ctx)
	if data == nil {
		return mcp.NewToolResultError("Weather unavailable"), nil
	}
	return mcp.NewToolResultText(a.weather.Describe(data)), nil
}

func (a *App) searchHistoryHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if a.recall == nil {
		return mcp.NewToolResultError("History recall is disabled; set MONSMATICS_RECALL=1"), nil
	}
	args := toolArgs(request)
	query := stringArg(args, "query")
	if query == "" {
		return mcp.NewToolResultError("Query cannot be empty"), nil
	}
	limit := DefaultRecallResults
	if n, ok := args["limit"].(float64); ok && n >= 1 {
		limit = int(n)
	}

	hits, err := a.recall.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No matching messages."), nil
	}
	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "[%s #%s] (%.2f) %s: %s\n", h.Date, h.MessageID, h.Similarity, h.Sender, h.Text)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (a *App) exportDataHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	backup, err := a.Export()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Export failed: %v", err)), nil
	}
	return jsonResult(backup)
}

func (a *App) importDataHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data := stringArg(toolArgs(request), "json_data")
	if data == "" {
		return mcp.NewToolResultError("Missing json_data parameter"), nil
	}
	res, err := a.ReadBackup(strings.NewReader(data))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Import failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Imported %d messages and %d reminders.", res.Messages, res.Reminders)), nil
}
