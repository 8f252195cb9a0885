package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ddellecasedata/sql-mcp/mcp"
	"github.com/ddellecasedata/sql-mcp/server"
)

// foodItemIDPrefix namespaces item ids in tool payloads
const foodItemIDPrefix = "food-"

// RegisterTools registers the inventory tool set on the registry.
// baseURL is used to build item URLs in search and fetch payloads.
func RegisterTools(registry *mcp.Registry, store *Store, baseURL string) error {
	tools := []mcp.Tool{
		&searchTool{store: store, baseURL: baseURL},
		&fetchTool{store: store, baseURL: baseURL},
		&addFoodItemTool{store: store},
		&listExpiringTool{store: store},
		&listTasksTool{store: store},
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func jsonContent(v any) ([]mcp.Content, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return []mcp.Content{mcp.TextContent(string(raw))}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// numberArg accepts both JSON numbers and numeric strings
func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

type searchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type searchTool struct {
	store   *Store
	baseURL string
}

func (t *searchTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "search",
		Description: "Search food items by name, category, or location",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search text"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *searchTool) Execute(ctx context.Context, args map[string]any, auth *server.AuthContext) ([]mcp.Content, error) {
	query := stringArg(args, "query")
	results := []searchResult{}

	if query != "" {
		items, err := t.store.SearchFoodItems(ctx, query, 10)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			results = append(results, searchResult{
				ID:    fmt.Sprintf("%s%d", foodItemIDPrefix, item.ID),
				Title: fmt.Sprintf("%s (%g %s)", item.Name, item.Quantity, item.Unit),
				URL:   fmt.Sprintf("%s/api/items/%d", t.baseURL, item.ID),
			})
		}
	}

	return jsonContent(map[string]any{"results": results})
}

type fetchTool struct {
	store   *Store
	baseURL string
}

func (t *fetchTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "fetch",
		Description: "Fetch the full record for an item id returned by search",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string", "description": "Item id, e.g. food-42"},
			},
			"required": []string{"id"},
		},
	}
}

func (t *fetchTool) Execute(ctx context.Context, args map[string]any, auth *server.AuthContext) ([]mcp.Content, error) {
	rawID := stringArg(args, "id")
	if !strings.HasPrefix(rawID, foodItemIDPrefix) {
		return nil, fmt.Errorf("invalid id format: %q", rawID)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(rawID, foodItemIDPrefix), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid id format: %q", rawID)
	}

	item, err := t.store.GetFoodItem(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("item not found: %s", rawID)
		}
		return nil, err
	}

	expires := item.ExpiresOn
	if expires == "" {
		expires = "not specified"
	}

	document := map[string]any{
		"id":    rawID,
		"title": "Food item: " + item.Name,
		"text": fmt.Sprintf(
			"FOOD ITEM: %s\n\nDetails:\n- Quantity: %g %s\n- Category: %s\n- Location: %s\n- Expires: %s\n- Added: %s\n- Last modified: %s\n",
			item.Name, item.Quantity, item.Unit, item.Category, item.Location,
			expires, item.CreatedAt, item.UpdatedAt),
		"url": fmt.Sprintf("%s/api/items/%d", t.baseURL, item.ID),
		"metadata": map[string]any{
			"type":     "food_item",
			"category": item.Category,
			"location": item.Location,
		},
	}

	return jsonContent(document)
}

type addFoodItemTool struct {
	store *Store
}

func (t *addFoodItemTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "add_food_item",
		Description: "Add a food item to the inventory",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":       map[string]any{"type": "string"},
				"quantity":   map[string]any{"type": "number", "minimum": 0},
				"unit":       map[string]any{"type": "string", "enum": Units},
				"category":   map[string]any{"type": "string", "enum": Categories},
				"location":   map[string]any{"type": "string", "enum": Locations},
				"expires_on": map[string]any{"type": "string", "description": "ISO date, optional"},
			},
			"required": []string{"name", "quantity", "unit", "category", "location"},
		},
	}
}

func (t *addFoodItemTool) Execute(ctx context.Context, args map[string]any, auth *server.AuthContext) ([]mcp.Content, error) {
	quantity, ok := numberArg(args, "quantity")
	if !ok {
		return nil, fmt.Errorf("quantity must be a number")
	}

	item := &FoodItem{
		Name:      stringArg(args, "name"),
		Quantity:  quantity,
		Unit:      stringArg(args, "unit"),
		Category:  stringArg(args, "category"),
		Location:  stringArg(args, "location"),
		ExpiresOn: stringArg(args, "expires_on"),
		UpdatedBy: auth.Subject,
	}

	id, err := t.store.AddFoodItem(ctx, item)
	if err != nil {
		return nil, err
	}

	return jsonContent(map[string]any{
		"id":      fmt.Sprintf("%s%d", foodItemIDPrefix, id),
		"message": fmt.Sprintf("Added %s (%g %s)", item.Name, item.Quantity, item.Unit),
	})
}

type listExpiringTool struct {
	store *Store
}

func (t *listExpiringTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "list_expiring",
		Description: "List food items expiring within the given number of days",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days": map[string]any{"type": "integer", "minimum": 0, "default": 3},
			},
		},
	}
}

func (t *listExpiringTool) Execute(ctx context.Context, args map[string]any, auth *server.AuthContext) ([]mcp.Content, error) {
	days := 3
	if v, ok := numberArg(args, "days"); ok {
		days = int(v)
	}

	items, err := t.store.ExpiringFoodItems(ctx, days)
	if err != nil {
		return nil, err
	}

	entries := []map[string]any{}
	for _, item := range items {
		entries = append(entries, map[string]any{
			"id":         fmt.Sprintf("%s%d", foodItemIDPrefix, item.ID),
			"name":       item.Name,
			"quantity":   item.Quantity,
			"unit":       item.Unit,
			"location":   item.Location,
			"expires_on": item.ExpiresOn,
		})
	}

	return jsonContent(map[string]any{"days": days, "items": entries})
}

type listTasksTool struct {
	store *Store
}

func (t *listTasksTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "list_tasks",
		Description: "List open household tasks, most urgent first",
		InputSchema: map[string]any{"type": "object"},
	}
}

func (t *listTasksTool) Execute(ctx context.Context, args map[string]any, auth *server.AuthContext) ([]mcp.Content, error) {
	tasks, err := t.store.OpenTasks(ctx)
	if err != nil {
		return nil, err
	}

	entries := []map[string]any{}
	for _, task := range tasks {
		entries = append(entries, map[string]any{
			"id":       task.ID,
			"title":    task.Title,
			"priority": task.Priority,
			"status":   task.Status,
			"due_on":   task.DueOn,
		})
	}

	return jsonContent(map[string]any{"tasks": entries})
}
