package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/Strob0t/spacegate/internal/adapter/jwt"
	sgotel "github.com/Strob0t/spacegate/internal/adapter/otel"
	"github.com/Strob0t/spacegate/internal/adapter/postgres"
	"github.com/Strob0t/spacegate/internal/config"
	"github.com/Strob0t/spacegate/internal/domain/authz"
	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/domain/user"
	"github.com/Strob0t/spacegate/internal/service"
)

// runAdmin dispatches operator subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "create-space":
		return runAdminCreateSpace(args[1:])
	case "list-spaces":
		return runAdminListSpaces(args[1:])
	case "add-admin":
		return runAdminEditAdmin(args[1:], true)
	case "remove-admin":
		return runAdminEditAdmin(args[1:], false)
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-users":
		return runAdminListUsers(args[1:])
	case "issue-token":
		return runAdminIssueToken(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: spacegate admin <command> [options]

Commands:
  migrate        Apply, roll back or inspect schema migrations
  create-space   Provision a new space
  list-spaces    List spaces
  add-admin      Grant a username admin rights on a space
  remove-admin   Revoke a username's admin rights on a space
  create-user    Register a user that can log in to a space
  list-users     List the users of a space
  issue-token    Print a signed session token (for testing)
  help           Show this help message

Examples:
  spacegate admin migrate
  spacegate admin migrate --down 1
  spacegate admin create-space --name "Academy" --domain app.example.com --creator ops@example.com
  spacegate admin add-admin --space academy --username alice
  spacegate admin create-user --space academy --username alice
  spacegate admin issue-token --space academy --username alice
`)
}

// adminDeps holds the services the admin commands operate on.
type adminDeps struct {
	cfg    *config.Config
	spaces *service.SpaceService
	auth   *service.AuthService
	store  *postgres.Store
}

func loadAdminDeps(ctx context.Context) (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Tenancy.Directory != "postgres" {
		return nil, nil, errors.New("admin commands require the postgres directory")
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	metrics, err := sgotel.NewMetrics()
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}

	store := postgres.NewStore(pool)
	policy := authz.NewPolicy(cfg.Auth.AllSuperAdmins())
	tokens := jwt.NewProvider(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	deps := &adminDeps{
		cfg:    cfg,
		spaces: service.NewSpaceService(store, policy, nil, metrics),
		auth:   service.NewAuthService(store, tokens, policy, cfg.Auth.BcryptCost),
		store:  store,
	}
	return deps, pool.Close, nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Int("down", 0, "roll back this many migrations")
	status := fs.Bool("status", false, "print the current schema version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	switch {
	case *status:
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d\n", v)
		return nil
	case *down > 0:
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *down); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Rolled back %d migration(s)\n", *down)
		return nil
	default:
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Migrations applied")
		return nil
	}
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runAdminCreateSpace(args []string) error {
	fs := flag.NewFlagSet("create-space", flag.ContinueOnError)
	id := fs.String("id", "", "space id (generated if empty)")
	name := fs.String("name", "", "display name (required)")
	creator := fs.String("creator", "", "username of the creator (required)")
	var domains, admins, features listFlag
	fs.Var(&domains, "domain", "domain served by the space (repeatable)")
	fs.Var(&admins, "admin", "admin username (repeatable)")
	fs.Var(&features, "feature", "enabled feature flag (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *creator == "" {
		return errors.New("--name and --creator are required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sp, err := deps.spaces.Create(ctx, &space.CreateRequest{
		ID:             *id,
		Name:           *name,
		Domains:        domains,
		AdminUsernames: admins,
		Creator:        *creator,
		Features:       features,
	}, "cli")
	if err != nil {
		return fmt.Errorf("create space: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Space created: %s (id=%s, domains=%s)\n", sp.Name, sp.ID, strings.Join(sp.Domains, ","))
	return nil
}

func runAdminListSpaces(args []string) error {
	fs := flag.NewFlagSet("list-spaces", flag.ContinueOnError)
	archived := fs.Bool("archived", false, "include archived spaces")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	spaces, err := deps.spaces.List(ctx, *archived)
	if err != nil {
		return fmt.Errorf("list spaces: %w", err)
	}
	if len(spaces) == 0 {
		fmt.Println("No spaces found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tDOMAINS\tADMINS\tCREATOR\tARCHIVED")
	for i := range spaces {
		s := &spaces[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			s.ID, s.Name, strings.Join(s.Domains, ","), strings.Join(s.AdminUsernames, ","), s.Creator, s.Archived)
	}
	return w.Flush()
}

func runAdminEditAdmin(args []string, grant bool) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	spaceID := fs.String("space", "", "space id (required)")
	username := fs.String("username", "", "username (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *spaceID == "" || *username == "" {
		return errors.New("--space and --username are required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	edit := deps.spaces.RemoveAdmin
	if grant {
		edit = deps.spaces.AddAdmin
	}
	sp, err := edit(ctx, *spaceID, *username, "cli")
	if err != nil {
		return fmt.Errorf("edit admins: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Admins of %s: %s\n", sp.ID, strings.Join(sp.AdminUsernames, ","))
	return nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	spaceID := fs.String("space", "", "space id (required)")
	username := fs.String("username", "", "username (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *spaceID == "" || *username == "" {
		return errors.New("--space and --username are required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return errors.New("passwords do not match")
		}
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := deps.spaces.Get(ctx, *spaceID); err != nil {
		return fmt.Errorf("space %s: %w", *spaceID, err)
	}
	u, err := deps.auth.Register(ctx, &user.CreateRequest{Username: *username, Password: pass, SpaceID: *spaceID})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(os.Stderr, "User created: %s (id=%s, space=%s)\n", u.Username, u.ID, u.SpaceID)
	return nil
}

func runAdminListUsers(args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	spaceID := fs.String("space", "", "space id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *spaceID == "" {
		return errors.New("--space is required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	users, err := deps.store.ListUsers(ctx, *spaceID)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tUSERNAME\tCREATED")
	for i := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", users[i].ID, users[i].Username, users[i].CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAdminIssueToken(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	spaceID := fs.String("space", "", "space id the token is issued for (required)")
	username := fs.String("username", "", "username (required)")
	userID := fs.String("user-id", "", "user id (defaults to the username)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *spaceID == "" || *username == "" {
		return errors.New("--space and --username are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	uid := *userID
	if uid == "" {
		uid = *username
	}

	tokens := jwt.NewProvider(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	tok, exp, err := tokens.Issue(context.Background(), identity.Identity{
		UserID:   uid,
		Username: space.NormalizeUsername(*username),
		SpaceID:  *spaceID,
	})
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Expires %s\n", exp.Format("2006-01-02 15:04:05 MST"))
	fmt.Println(tok)
	return nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
