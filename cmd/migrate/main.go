package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"crashround/internal/database"
	"crashround/internal/logger"
)

const PathFName = "path"

func main() {
	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}
	log, err := logger.New("migrate", env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	app := cli.NewApp()
	app.Name = "migrate"
	app.Usage = "manage the balance database schema"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: PathFName, Value: "./migrations", Usage: "migrations directory", EnvVar: "MIGRATIONS_PATH"},
	}
	app.Commands = []cli.Command{
		{
			Name:  "up",
			Usage: "run all pending migrations",
			Action: withDB(log, func(c *cli.Context, db *sql.DB) error {
				log.Info("running migrations")
				if err := database.RunMigrations(db, c.GlobalString(PathFName)); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				log.Info("migrations completed")
				return nil
			}),
		},
		{
			Name:  "down",
			Usage: "roll back the last migration",
			Action: withDB(log, func(c *cli.Context, db *sql.DB) error {
				log.Info("rolling back last migration")
				if err := database.RollbackMigration(db, c.GlobalString(PathFName)); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				log.Info("rollback completed")
				return nil
			}),
		},
		{
			Name:  "version",
			Usage: "show the current migration version",
			Action: withDB(log, func(c *cli.Context, db *sql.DB) error {
				version, dirty, err := database.GetMigrationVersion(db, c.GlobalString(PathFName))
				if err != nil {
					return fmt.Errorf("get version: %w", err)
				}
				if dirty {
					log.Warn("schema is dirty and needs manual intervention", zap.Uint("version", version))
					return nil
				}
				log.Info("current version", zap.Uint("version", version))
				return nil
			}),
		},
		{
			Name:      "create",
			Usage:     "create a new pair of migration files",
			ArgsUsage: "<name>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.NewExitError("usage: migrate create <name>", 1)
				}
				up, down, err := createMigration(c.GlobalString(PathFName), c.Args().First(), time.Now())
				if err != nil {
					return err
				}
				log.Info("created migration files", zap.String("up", up), zap.String("down", down))
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("migrate failed", zap.Error(err))
		os.Exit(1)
	}
}

func withDB(log *zap.Logger, fn func(*cli.Context, *sql.DB) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		db, err := sql.Open("pgx", database.DSN())
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn("close database", zap.Error(err))
			}
		}()
		return fn(c, db)
	}
}

var migrationFile = regexp.MustCompile(`^(\d+)_.+\.(up|down)\.sql$`)

// createMigration writes empty up and down files numbered after the highest
// existing version in dir.
func createMigration(dir, name string, now time.Time) (string, string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("read migrations directory: %w", err)
	}

	next := 1
	for _, file := range files {
		m := migrationFile.FindStringSubmatch(file.Name())
		if m == nil {
			continue
		}
		if v, err := strconv.Atoi(m[1]); err == nil && v >= next {
			next = v + 1
		}
	}

	up := filepath.Join(dir, fmt.Sprintf("%06d_%s.up.sql", next, name))
	down := filepath.Join(dir, fmt.Sprintf("%06d_%s.down.sql", next, name))

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, now.UTC().Format(time.RFC3339))
	if err := os.WriteFile(up, []byte(upContent), 0o644); err != nil {
		return "", "", fmt.Errorf("create up migration: %w", err)
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(down, []byte(downContent), 0o644); err != nil {
		return "", "", fmt.Errorf("create down migration: %w", err)
	}
	return up, down, nil
}
