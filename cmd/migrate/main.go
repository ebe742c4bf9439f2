package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"conclave.org/internal/migrate"
	"conclave.org/internal/store/sqlstore"
)

func main() {
	log.SetFlags(0)
	var (
		driver = flag.String("driver", envOr("CONCLAVE_STORE_DRIVER", sqlstore.DriverPostgres), "Database driver (pgx or sqlite3)")
		dsn    = flag.String("dsn", os.Getenv("CONCLAVE_STORE_DSN"), "Database DSN")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CONCLAVE_STORE_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fsys, err := sqlstore.Migrations(*driver)
	if err != nil {
		log.Fatal(err)
	}
	st, err := sqlstore.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	mgr := migrate.NewManager(st.DB(), fsys)

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Println("reverted", name)
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
