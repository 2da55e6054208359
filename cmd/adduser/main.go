// Command adduser creates a txledger account from the command line.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"txledger/internal/auth"
	"txledger/internal/models"
	"txledger/internal/storage"

	"golang.org/x/term"
)

const defaultDBPath = "txledger.db"

var errUserExists = errors.New("already exists")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	userFlag := fs.String("user", "", "Username (surrounding whitespace is dropped)")
	passwordFlag := fs.String("password", "", "Password (prompted for when omitted)")
	dbFlag := fs.String("db", "", "Path to database file (default $DB_PATH or "+defaultDBPath+")")

	if err := fs.Parse(args); err != nil {
		return err
	}

	username := auth.NormalizeUsername(*userFlag)
	if username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-password <password>] [-db <db_path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	db, err := storage.NewDB(databasePath(*dbFlag))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	user, err := createUser(context.Background(), db, username, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", user.Username, user.ID)
	return nil
}

// databasePath picks the -db flag, then $DB_PATH, then the default file.
func databasePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("DB_PATH"); env != "" {
		return env
	}
	return defaultDBPath
}

type userStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
}

// createUser stores a new account under an unused username.
func createUser(ctx context.Context, store userStore, username, password string) (*models.User, error) {
	_, err := store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, fmt.Errorf("user %s %w", username, errUserExists)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := store.CreateUser(ctx, username, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// readPassword reads without echo on a terminal and a single line otherwise.
func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
