// Package inventory is the food and task domain store behind the tool
// registry. It owns the SQLite schema and exposes the search, fetch,
// add_food_item, list_expiring, and list_tasks tools.
package inventory
