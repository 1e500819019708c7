package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
)

func (cli *commandLine) listGenerations() error {
	if cli.store == nil {
		return errNoStore
	}
	ctx := context.Background()

	names, err := cli.store.Names(ctx)
	if err != nil {
		return errors.Wrap(err, "listing generations")
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	if cli.isTerminal() {
		fmt.Fprintln(w, "GENERATION\tENTRIES\tCURRENT")
	}
	for _, name := range names {
		gen, ok, err := cli.store.Lookup(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "opening generation %s", name)
		}
		if !ok { // deleted since listed
			continue
		}
		keys, err := gen.Keys(ctx)
		if err != nil {
			return errors.Wrapf(err, "listing keys of %s", name)
		}
		current := ""
		if name == cli.conf.Cache.Version {
			current = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(keys), current)
	}
	return w.Flush()
}

// purge deletes every generation except `keep`.
func (cli *commandLine) purge(keep string) error {
	if cli.store == nil {
		return errNoStore
	}
	ctx := context.Background()

	names, err := cli.store.Names(ctx)
	if err != nil {
		return errors.Wrap(err, "listing generations")
	}
	for _, name := range names {
		if name == keep {
			continue
		}
		if _, err = cli.store.Delete(ctx, name); err != nil {
			return errors.Wrapf(err, "deleting generation %s", name)
		}
		fmt.Fprintf(cli.out, "deleted %s\n", name)
	}
	return nil
}
