package snowflake

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/snowstage/stagectl/internal/logging"
)

// Client wraps a warehouse connection with statement logging and the small
// set of operations stagectl needs: file transfer, stage listing, and
// Streamlit object management.
type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

// StageEntry is one row of an LS listing.
type StageEntry struct {
	// Name is the listed path as reported by the warehouse.
	Name string
	// Size is the stored file size in bytes.
	Size int64
	// MD5 is the content digest reported by the stage.
	MD5 string
	// LastModified is the modification timestamp as reported, unparsed.
	LastModified string
}

// StreamlitInfo describes an existing Streamlit object.
type StreamlitInfo struct {
	Name           string
	DatabaseName   string
	SchemaName     string
	Title          string
	Owner          string
	Comment        string
	QueryWarehouse string
	URLID          string
	CreatedOn      string
}

// SessionInfo reports the effective session coordinates after login.
type SessionInfo struct {
	User      string
	Role      string
	Warehouse string
	Database  string
	Schema    string
	Version   string
}

// Connect opens a connection, verifies it with a ping, and routes the
// driver's own log output through slog at debug level.
func Connect(ctx context.Context, cfg ConnConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	driverLogger := gosnowflake.GetLogger()
	_ = driverLogger.SetLogLevel("error")
	driverLogger.SetOutput(logging.NewWriter(logger, logging.LevelDebug, "driver output"))

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse connection: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to account %q as %q: %w", cfg.Account, cfg.User, err)
	}

	return &Client{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Exec runs a single statement, logging it at debug level.
func (c *Client) Exec(ctx context.Context, query string) error {
	c.logger.Debug("executing statement", "sql", compactSQL(query))
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute %s: %w", compactSQL(query), err)
	}
	return nil
}

// PutFile uploads one local file into a stage directory (original deploy
// script operation: PUT file://<local> @<stage>/<prefix>).
func (c *Client) PutFile(ctx context.Context, localPath, stageLocation string) error {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return fmt.Errorf("resolve local path %q: %w", localPath, err)
	}
	stmt, err := BuildPutStatement(abs, stageLocation)
	if err != nil {
		return err
	}
	return c.Exec(ctx, stmt)
}

// PutBytes uploads an in-memory payload as a named file in a stage
// directory, using the driver's file-stream support instead of a temp file.
func (c *Client) PutBytes(ctx context.Context, data []byte, stageLocation, filename string) error {
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("filename %q must not contain path separators", filename)
	}
	stmt, err := BuildPutStatement("/"+filename, stageLocation)
	if err != nil {
		return err
	}
	ctx = gosnowflake.WithFileStream(ctx, bytes.NewReader(data))
	return c.Exec(ctx, stmt)
}

// GetFile downloads one staged file into a local directory.
func (c *Client) GetFile(ctx context.Context, stagePath, localDir string) error {
	abs, err := filepath.Abs(localDir)
	if err != nil {
		return fmt.Errorf("resolve local directory %q: %w", localDir, err)
	}
	stmt, err := BuildGetStatement(stagePath, abs)
	if err != nil {
		return err
	}
	return c.Exec(ctx, stmt)
}

// ListStage returns the files under a stage location. A missing prefix is
// not an error; it simply lists zero entries.
func (c *Client) ListStage(ctx context.Context, location string) ([]StageEntry, error) {
	stmt, err := BuildListStatement(location)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("executing statement", "sql", stmt)

	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list stage %q: %w", location, err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("scan stage listing for %q: %w", location, err)
	}

	entries := make([]StageEntry, 0, len(records))
	for _, rec := range records {
		entry := StageEntry{
			Name:         rec["name"],
			MD5:          rec["md5"],
			LastModified: rec["last_modified"],
		}
		if sizeStr := rec["size"]; sizeStr != "" {
			entry.Size, _ = strconv.ParseInt(sizeStr, 10, 64)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RemoveStagePath removes all files under a stage location.
func (c *Client) RemoveStagePath(ctx context.Context, location string) error {
	stmt, err := BuildRemoveStatement(location)
	if err != nil {
		return err
	}
	return c.Exec(ctx, stmt)
}

// CreateStage creates the named stage when it does not exist yet.
func (c *Client) CreateStage(ctx context.Context, database, schema, stage string) error {
	stmt, err := BuildCreateStageStatement(database, schema, stage)
	if err != nil {
		return err
	}
	return c.Exec(ctx, stmt)
}

// CreateOrReplaceStreamlit registers the app object (original deploy script
// operation: one declarative statement binding staged files to the app and
// its query warehouse).
func (c *Client) CreateOrReplaceStreamlit(ctx context.Context, spec AppSpec) error {
	stmt, err := BuildCreateStreamlitStatement(spec)
	if err != nil {
		return err
	}
	return c.Exec(ctx, stmt)
}

// DropStreamlit removes the app object if present.
func (c *Client) DropStreamlit(ctx context.Context, database, schema, name string) error {
	stmt, err := BuildDropStreamlitStatement(database, schema, name)
	if err != nil {
		return err
	}
	return c.Exec(ctx, stmt)
}

// ShowStreamlit looks up a single app object, returning a NotFoundError when
// it does not exist.
func (c *Client) ShowStreamlit(ctx context.Context, database, schema, name string) (*StreamlitInfo, error) {
	stmt, err := BuildShowStreamlitsStatement(database, schema, name)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("executing statement", "sql", stmt)

	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("show streamlits in %s.%s: %w", database, schema, err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("scan streamlit listing: %w", err)
	}

	// LIKE treats underscores as wildcards, so match the name exactly here.
	for _, rec := range records {
		if !strings.EqualFold(rec["name"], name) {
			continue
		}
		return &StreamlitInfo{
			Name:           rec["name"],
			DatabaseName:   rec["database_name"],
			SchemaName:     rec["schema_name"],
			Title:          rec["title"],
			Owner:          rec["owner"],
			Comment:        rec["comment"],
			QueryWarehouse: rec["query_warehouse"],
			URLID:          rec["url_id"],
			CreatedOn:      rec["created_on"],
		}, nil
	}
	return nil, &NotFoundError{Kind: "streamlit", Name: QualifiedName(database, schema, name)}
}

// CurrentSession reports the effective session coordinates.
func (c *Client) CurrentSession(ctx context.Context) (SessionInfo, error) {
	const query = "SELECT CURRENT_USER(), CURRENT_ROLE(), CURRENT_WAREHOUSE(), CURRENT_DATABASE(), CURRENT_SCHEMA(), CURRENT_VERSION()"
	c.logger.Debug("executing statement", "sql", query)

	var user, role, warehouse, database, schema, version sql.NullString
	row := c.db.QueryRowContext(ctx, query)
	if err := row.Scan(&user, &role, &warehouse, &database, &schema, &version); err != nil {
		return SessionInfo{}, fmt.Errorf("query session info: %w", err)
	}
	return SessionInfo{
		User:      user.String,
		Role:      role.String,
		Warehouse: warehouse.String,
		Database:  database.String,
		Schema:    schema.String,
		Version:   version.String,
	}, nil
}

// scanRowsToMaps scans every row into a column-name-keyed map. Result sets
// from SHOW and LS vary between service versions, so rows are scanned by
// name instead of position.
func scanRowsToMaps(rows *sql.Rows) ([]map[string]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]string, len(cols))
		for i, col := range cols {
			rec[strings.ToLower(col)] = values[i].String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// compactSQL collapses whitespace and truncates long statements for logs.
func compactSQL(query string) string {
	fields := strings.Fields(query)
	s := strings.Join(fields, " ")
	const max = 160
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
