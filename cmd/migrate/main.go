package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"claude-invocation/internal/database"

	_ "github.com/go-sql-driver/mysql"
	"github.com/manifold-inc/manifold-sdk/lib/eflag"
)

func main() {
	dsn := flag.String("dsn", "", "MySQL DSN for usage records")
	file := flag.String("file", "", "Migration file, defaults to the embedded usage schema")
	if err := eflag.SetFlagsFromEnvironment(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading environment: %v\n", err)
		os.Exit(1)
	}
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "Error: DSN is required")
		os.Exit(1)
	}

	script := database.Schema
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading migration file %s: %v\n", *file, err)
			os.Exit(1)
		}
		script = string(data)
	}

	db, err := sql.Open("mysql", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging database: %v\n", err)
		os.Exit(1)
	}

	if err := database.Migrate(context.Background(), db, script); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migration completed successfully")
}
