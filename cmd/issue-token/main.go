// Command issue-token mints bearer tokens signed with the API's JWT settings.
//
// Usage:
//
//	issue-token -service cron                      scheduler token for sweep triggers
//	issue-token -user u-1 -email a@example.com     organizer access + refresh pair
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"meeting-scheduler/internal/auth"
	"meeting-scheduler/internal/config"
	"meeting-scheduler/internal/rbac"

	"github.com/joho/godotenv"
)

func main() {
	service := flag.String("service", "", "service name; issues a scheduler token")
	ttl := flag.Duration("ttl", 365*24*time.Hour, "service token lifetime")
	user := flag.String("user", "", "organizer user id")
	email := flag.String("email", "", "organizer email")
	name := flag.String("name", "", "organizer display name")
	role := flag.String("role", rbac.RoleOrganizer, "role for user tokens")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "reading .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "auth: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	switch {
	case *service != "":
		tok, err := m.IssueService(now, *service, rbac.RoleScheduler, *ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(tok)
	case *user != "" && *email != "":
		pair, err := m.IssuePair(now, auth.Identity{UserID: *user, Email: *email, Name: *name, Role: *role})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("access:  %s\nrefresh: %s\n", pair.AccessToken, pair.RefreshToken)
	default:
		flag.Usage()
		os.Exit(2)
	}
}
