// Command useradd provisions an account directly in the database. There is
// no self-service registration surface; operators create accounts with this
// tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"retroim/internal/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "retroim.db", "path to the sqlite database")
	email := flag.String("email", "", "account email (required)")
	password := flag.String("password", "", "account password (required)")
	name := flag.String("name", "", "display name (defaults to email)")
	flag.Parse()

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *name == "" {
		*name = *email
	}

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		fail("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := sqlite.Migrate(db); err != nil {
		fail("migrate database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := sqlite.NewUserStore(db)
	user, err := store.CreateUser(ctx, *email, *password, *name)
	if err != nil {
		fail("create user: %v", err)
	}

	fmt.Printf("created %s (%s)\n", user.Email, user.UUID)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
