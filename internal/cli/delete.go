package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eyespy-lab/stimlog/internal/storage"
)

// setDB allows tests to inject a database connection.
func (c *DeleteCommand) setDB(db *sql.DB) {
	c.db = db
}

// Execute implements the go-flags Commander interface for DeleteCommand.
func (c *DeleteCommand) Execute(args []string) error {
	return c.execute(os.Stdin)
}

// openStore wraps the injected database, or opens the configured one.
func (c *DeleteCommand) openStore() (*storage.SQLiteStore, func() error, error) {
	if c.db != nil {
		store, err := storage.NewSQLiteStore(c.db)
		if err != nil {
			return nil, nil, fmt.Errorf("init store: %w", err)
		}
		return store, func() error { return nil }, nil
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return nil, nil, err
	}
	store, db, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, db.Close, nil
}

func (c *DeleteCommand) execute(in io.Reader) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for delete command")
	}

	store, closeDB, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeDB()
	defer store.Close()

	ctx := context.Background()
	sess, err := store.GetSession(ctx, c.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("session not found: %s", c.ID)
		}
		return err
	}

	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Printf("This will delete session %s from the index.\n", sess.ID)
		fmt.Printf("  - %d trials and the stimulus catalogue\n", sess.Trials)
		fmt.Printf("The session log %s is kept.\n", sess.LogPath)
		fmt.Println()
		fmt.Print(`Type "DELETE" to confirm: `)

		scanner := bufio.NewScanner(in)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		if strings.TrimSpace(scanner.Text()) != "DELETE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"deleted": sess.ID,
			"log":     sess.LogPath,
		})
	}

	fmt.Printf("Deleted session %s. Its log remains at %s.\n", sess.ID, sess.LogPath)
	return nil
}
