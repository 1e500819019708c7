package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/core/cache"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp    = errors.New("help provided")
	errNoDB    = errors.New("no database configured (set the cache store to \"database\")")
	errNoStore = errors.New("no persistent cache store configured")
)

type commandLine struct {
	conf  *core.Config
	db    *sqlx.DB    // nil unless the cache store is "database"
	store cache.Store // nil for the in-memory store
	out   io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]             - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  generations                        - list the cache generations")
	fmt.Fprintln(cli.out, "  purge -keep VERSION                - delete every cache generation but VERSION")
	fmt.Fprintln(cli.out, "  token -subject NAME -role ROLE,... - issue an API token (roles: "+strings.Join(apiRoles, ", ")+")")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	purgeCmd := flag.NewFlagSet("purge", flag.ContinueOnError)
	purgeCmd.SetOutput(cli.out)
	purgeKeep := purgeCmd.String("keep", "", "The version of the generation to keep.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenSubject := tokenCmd.String("subject", "", "The name of the token holder.")
	tokenRoles := tokenCmd.String("role", "", "Comma separated roles granted to the holder.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Fprintln(cli.out, "Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])

	case "generations":
		return cli.listGenerations()

	case "purge":
		if err := purgeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		keep := core.CleanString(*purgeKeep)
		if keep == "" {
			purgeCmd.Usage()
			return errHelp
		}
		return cli.purge(keep)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		subject := core.CleanString(*tokenSubject, true /* lower */)
		if subject == "" || *tokenRoles == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(subject, strings.Split(*tokenRoles, ","))

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) isTerminal() bool {
	f, ok := cli.out.(interface{ Fd() uintptr })
	return ok && isTerminalFunc(int(f.Fd()))
}
