// Package target manages the database that questions are answered against:
// opening connections per dialect, introspecting the schema and executing
// read-only queries.
package target

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Config struct {
	Dialect      string
	DSN          string
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	MaxOpenConns int
	MaxIdleConns int
}

// BuildDSN assembles a driver DSN from discrete connection fields. An
// explicit DSN wins. For sqlite and duckdb the database field is the file
// path; an empty duckdb path opens an in-memory database.
func BuildDSN(cfg Config) (string, error) {
	if strings.TrimSpace(cfg.DSN) != "" {
		return strings.TrimSpace(cfg.DSN), nil
	}
	switch cfg.Dialect {
	case "postgres":
		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		if cfg.Database == "" {
			return "", fmt.Errorf("postgres target requires a database name")
		}
		userInfo := ""
		if cfg.User != "" {
			userInfo = url.QueryEscape(cfg.User)
			if cfg.Password != "" {
				userInfo += ":" + url.QueryEscape(cfg.Password)
			}
			userInfo += "@"
		}
		return fmt.Sprintf("postgres://%s%s:%d/%s", userInfo, host, port, cfg.Database), nil
	case "mysql":
		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		if cfg.Database == "" {
			return "", fmt.Errorf("mysql target requires a database name")
		}
		credentials := ""
		if cfg.User != "" {
			credentials = cfg.User
			if cfg.Password != "" {
				credentials += ":" + cfg.Password
			}
			credentials += "@"
		}
		return fmt.Sprintf("%stcp(%s:%d)/%s?parseTime=true", credentials, host, port, cfg.Database), nil
	case "sqlite":
		if cfg.Database == "" {
			return "", fmt.Errorf("sqlite target requires a database file path")
		}
		return cfg.Database, nil
	case "duckdb":
		return cfg.Database, nil
	default:
		return "", fmt.Errorf("unsupported target dialect: %q", cfg.Dialect)
	}
}

func driverName(dialect string) (string, error) {
	switch dialect {
	case "postgres":
		return "pgx", nil
	case "mysql":
		return "mysql", nil
	case "sqlite":
		return "sqlite", nil
	case "duckdb":
		return "duckdb", nil
	default:
		return "", fmt.Errorf("unsupported target dialect: %q", dialect)
	}
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driver, err := driverName(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open target db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping target db: %w", err)
	}
	return db, nil
}

// QuoteIdent quotes a table or column identifier for the dialect.
func QuoteIdent(dialect, name string) string {
	if dialect == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
