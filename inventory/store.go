package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("inventory: not found")

// Allowed enum values, enforced both here and by CHECK constraints
var (
	Units      = []string{"PIECES", "KG", "LITERS", "GRAMS"}
	Categories = []string{"DAIRY", "VEGETABLES", "FRUIT", "MEAT", "FISH", "PRESERVES", "BEVERAGES", "OTHER"}
	Locations  = []string{"FRIDGE", "FREEZER", "PANTRY", "CELLAR"}
	Priorities = []string{"HIGH", "MEDIUM", "LOW"}
	Statuses   = []string{"TODO", "IN_PROGRESS", "DONE", "CANCELLED"}
)

const schema = `
CREATE TABLE IF NOT EXISTS food_items (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	quantity    REAL NOT NULL CHECK (quantity >= 0),
	unit        TEXT NOT NULL CHECK (unit IN ('PIECES','KG','LITERS','GRAMS')),
	category    TEXT NOT NULL CHECK (category IN ('DAIRY','VEGETABLES','FRUIT','MEAT','FISH','PRESERVES','BEVERAGES','OTHER')),
	location    TEXT NOT NULL CHECK (location IN ('FRIDGE','FREEZER','PANTRY','CELLAR')),
	expires_on  TEXT,
	created_at  TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
	updated_by  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT NOT NULL,
	description TEXT,
	priority    TEXT NOT NULL DEFAULT 'MEDIUM' CHECK (priority IN ('HIGH','MEDIUM','LOW')),
	status      TEXT NOT NULL DEFAULT 'TODO' CHECK (status IN ('TODO','IN_PROGRESS','DONE','CANCELLED')),
	due_on      TEXT,
	created_by  TEXT NOT NULL,
	created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_food_items_name ON food_items(name);
CREATE INDEX IF NOT EXISTS idx_food_items_expires ON food_items(expires_on);
`

// FoodItem is one stocked item
type FoodItem struct {
	ID        int64
	Name      string
	Quantity  float64
	Unit      string
	Category  string
	Location  string
	ExpiresOn string // ISO date, empty when unknown
	CreatedAt string
	UpdatedAt string
	UpdatedBy string
}

// Task is one household task
type Task struct {
	ID          int64
	Title       string
	Description string
	Priority    string
	Status      string
	DueOn       string
	CreatedBy   string
	CreatedAt   string
}

// Store is the SQLite-backed inventory and task store
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and bootstraps the schema
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}

	logger.Info("Inventory database ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports database liveness
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func validateEnum(field, value string, allowed []string) error {
	for _, v := range allowed {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (allowed: %s)", field, value, strings.Join(allowed, ", "))
}

// AddFoodItem inserts a new item and returns its id
func (s *Store) AddFoodItem(ctx context.Context, item *FoodItem) (int64, error) {
	if strings.TrimSpace(item.Name) == "" {
		return 0, fmt.Errorf("name is required")
	}
	if item.Quantity < 0 {
		return 0, fmt.Errorf("quantity must not be negative")
	}
	if err := validateEnum("unit", item.Unit, Units); err != nil {
		return 0, err
	}
	if err := validateEnum("category", item.Category, Categories); err != nil {
		return 0, err
	}
	if err := validateEnum("location", item.Location, Locations); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO food_items (name, quantity, unit, category, location, expires_on, updated_by)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`,
		item.Name, item.Quantity, item.Unit, item.Category, item.Location, item.ExpiresOn, item.UpdatedBy)
	if err != nil {
		return 0, fmt.Errorf("inserting food item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading insert id: %w", err)
	}

	s.logger.Info("Food item added", "id", id, "name", item.Name, "by", item.UpdatedBy)
	return id, nil
}

// GetFoodItem loads one item by id
func (s *Store) GetFoodItem(ctx context.Context, id int64) (*FoodItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, quantity, unit, category, location,
		        COALESCE(expires_on, ''), created_at, updated_at, updated_by
		 FROM food_items WHERE id = ?`, id)

	var item FoodItem
	err := row.Scan(&item.ID, &item.Name, &item.Quantity, &item.Unit, &item.Category,
		&item.Location, &item.ExpiresOn, &item.CreatedAt, &item.UpdatedAt, &item.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading food item: %w", err)
	}
	return &item, nil
}

// SearchFoodItems finds items whose name, category, or location matches
// the query, case-insensitively, capped at limit rows
func (s *Store) SearchFoodItems(ctx context.Context, query string, limit int) ([]*FoodItem, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(query) + "%"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, quantity, unit, category, location,
		        COALESCE(expires_on, ''), created_at, updated_at, updated_by
		 FROM food_items
		 WHERE LOWER(name) LIKE ? OR LOWER(category) LIKE ? OR LOWER(location) LIKE ?
		 ORDER BY name
		 LIMIT ?`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching food items: %w", err)
	}
	defer rows.Close()

	return scanFoodItems(rows)
}

// ExpiringFoodItems lists items whose expiry falls within the next days
func (s *Store) ExpiringFoodItems(ctx context.Context, days int) ([]*FoodItem, error) {
	if days < 0 {
		return nil, fmt.Errorf("days must not be negative")
	}
	cutoff := time.Now().AddDate(0, 0, days).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, quantity, unit, category, location,
		        COALESCE(expires_on, ''), created_at, updated_at, updated_by
		 FROM food_items
		 WHERE expires_on IS NOT NULL AND expires_on <= ?
		 ORDER BY expires_on`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing expiring items: %w", err)
	}
	defer rows.Close()

	return scanFoodItems(rows)
}

func scanFoodItems(rows *sql.Rows) ([]*FoodItem, error) {
	var items []*FoodItem
	for rows.Next() {
		var item FoodItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.Unit, &item.Category,
			&item.Location, &item.ExpiresOn, &item.CreatedAt, &item.UpdatedAt, &item.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scanning food item: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// AddTask inserts a new task and returns its id
func (s *Store) AddTask(ctx context.Context, task *Task) (int64, error) {
	if strings.TrimSpace(task.Title) == "" {
		return 0, fmt.Errorf("title is required")
	}
	if task.Priority == "" {
		task.Priority = "MEDIUM"
	}
	if task.Status == "" {
		task.Status = "TODO"
	}
	if err := validateEnum("priority", task.Priority, Priorities); err != nil {
		return 0, err
	}
	if err := validateEnum("status", task.Status, Statuses); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, priority, status, due_on, created_by)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)`,
		task.Title, task.Description, task.Priority, task.Status, task.DueOn, task.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("inserting task: %w", err)
	}
	return res.LastInsertId()
}

// OpenTasks lists tasks that are not done or cancelled, most urgent first
func (s *Store) OpenTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, COALESCE(description, ''), priority, status,
		        COALESCE(due_on, ''), created_by, created_at
		 FROM tasks
		 WHERE status IN ('TODO', 'IN_PROGRESS')
		 ORDER BY CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END, due_on`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.Title, &task.Description, &task.Priority,
			&task.Status, &task.DueOn, &task.CreatedBy, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}
