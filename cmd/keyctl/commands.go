package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"keyforge/internal/exporter"
	"keyforge/internal/services"
	"keyforge/pkg/contracts/domain"
)

var errUsage = errors.New("invalid usage")

const timeLayout = "2006-01-02 15:04:05 MST"

type cli struct {
	service services.KeyService
	out     io.Writer
	json    bool
	now     func() time.Time
}

type command func(ctx context.Context, args []string) error

func (c *cli) commands() map[string]command {
	return map[string]command{
		"generate":  c.generate,
		"tempkey":   c.tempKey,
		"show":      c.show,
		"delete":    c.deleteKey,
		"resethwid": c.resetHWID,
		"revoke":    c.revoke,
		"list":      c.list,
		"checktime": c.checkTime,
		"stats":     c.stats,
		"cleanup":   c.cleanup,
		"export":    c.export,
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, ok := c.commands()[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return cmd(ctx, args[1:])
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

// keyArg returns the single positional key id
func keyArg(name string, args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", fmt.Errorf("%w: %s takes exactly one key", errUsage, name)
	}
	return args[0], nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) generate(ctx context.Context, args []string) error {
	fs := newFlagSet("generate")
	amount := fs.Int("n", 1, "number of keys")
	if err := parse(fs, args); err != nil {
		return err
	}
	recs, err := c.service.Generate(ctx, *amount)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(recs)
	}
	for _, rec := range recs {
		fmt.Fprintln(c.out, rec.ID)
	}
	return nil
}

func (c *cli) tempKey(ctx context.Context, args []string) error {
	fs := newFlagSet("tempkey")
	minutes := fs.Int("minutes", 0, "lifetime in minutes")
	amount := fs.Int("n", 1, "number of keys")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *minutes == 0 {
		return fmt.Errorf("%w: tempkey requires -minutes", errUsage)
	}
	recs, err := c.service.GenerateTemporary(ctx, *minutes, *amount)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(recs)
	}
	for _, rec := range recs {
		fmt.Fprintf(c.out, "%s\texpires %s\n", rec.ID, formatTime(rec.ExpiresAt))
	}
	return nil
}

func (c *cli) show(ctx context.Context, args []string) error {
	id, err := keyArg("show", args)
	if err != nil {
		return err
	}
	rec, err := c.service.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(rec)
	}
	return c.printKeys([]domain.KeyRecord{rec})
}

func (c *cli) deleteKey(ctx context.Context, args []string) error {
	id, err := keyArg("delete", args)
	if err != nil {
		return err
	}
	if err := c.service.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Key %s deleted\n", id)
	return nil
}

func (c *cli) resetHWID(ctx context.Context, args []string) error {
	id, err := keyArg("resethwid", args)
	if err != nil {
		return err
	}
	rec, err := c.service.ResetHWID(ctx, id)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(rec)
	}
	fmt.Fprintf(c.out, "HWID reset for key %s (resets: %d)\n", rec.ID, rec.HWIDResets)
	return nil
}

func (c *cli) revoke(ctx context.Context, args []string) error {
	id, err := keyArg("revoke", args)
	if err != nil {
		return err
	}
	rec, err := c.service.Revoke(ctx, id)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(rec)
	}
	fmt.Fprintf(c.out, "Key %s revoked\n", rec.ID)
	return nil
}

func (c *cli) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	filter := fs.String("filter", "all", "all, permanent, temporary, active, expired, bound or unbound")
	if err := parse(fs, args); err != nil {
		return err
	}
	recs, err := c.service.List(ctx, domain.KeyFilter(*filter))
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "No keys found")
		return nil
	}
	return c.printKeys(recs)
}

func (c *cli) printKeys(recs []domain.KeyRecord) error {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tACTIVE\tHWID\tRESETS\tCREATED\tEXPIRES")
	for _, rec := range recs {
		hwid := rec.BoundTo()
		if hwid == "" {
			hwid = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%d\t%s\t%s\n",
			rec.ID, rec.Kind, rec.Active, hwid, rec.HWIDResets,
			rec.CreatedAt.Format(timeLayout), formatTime(rec.ExpiresAt))
	}
	return tw.Flush()
}

func (c *cli) checkTime(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: checktime takes at most one key", errUsage)
	}
	var id string
	if len(args) == 1 {
		id = args[0]
	}
	infos, err := c.service.CheckTime(ctx, id)
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(c.out, "No temporary keys")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tEXPIRES\tLEFT\tSTATUS")
	for _, info := range infos {
		left := strconv.Itoa(info.TimeLeftMinutes) + "m"
		status := "active"
		switch {
		case info.Never:
			left = "never"
		case info.Expired:
			status = "expired"
		}
		if !info.Active && !info.Expired {
			status = "inactive"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Key, formatTime(info.ExpiresAt), left, status)
	}
	return tw.Flush()
}

func (c *cli) stats(ctx context.Context, args []string) error {
	fs := newFlagSet("stats")
	report := fs.Bool("report", false, "also post the report to the webhook")
	if err := parse(fs, args); err != nil {
		return err
	}
	var (
		st  domain.KeyStats
		err error
	)
	if *report {
		st, err = c.service.ReportStats(ctx)
	} else {
		st, err = c.service.Stats(ctx)
	}
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(st)
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for _, row := range []struct {
		label string
		n     int
	}{
		{"Total", st.TotalKeys},
		{"Permanent", st.Permanent},
		{"Temporary", st.Temporary},
		{"Active", st.Active},
		{"Expired", st.Expired},
		{"Bound", st.Bound},
		{"Unbound", st.Unbound},
		{"HWID resets", st.HWIDResets},
	} {
		fmt.Fprintf(tw, "%s:\t%d\n", row.label, row.n)
	}
	return tw.Flush()
}

func (c *cli) cleanup(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: cleanup takes no arguments", errUsage)
	}
	removed, err := c.service.Cleanup(ctx)
	if err != nil {
		return err
	}
	if c.json {
		if removed == nil {
			removed = []string{}
		}
		return c.printJSON(removed)
	}
	fmt.Fprintf(c.out, "Removed %d expired key(s)\n", len(removed))
	return nil
}

func (c *cli) export(ctx context.Context, args []string) error {
	fs := newFlagSet("export")
	format := fs.String("format", "csv", "csv or xlsx")
	filter := fs.String("filter", "all", "key filter, as for list")
	out := fs.String("out", "", `output file, "-" for stdout (default keys-<timestamp>.<format>)`)
	if err := parse(fs, args); err != nil {
		return err
	}
	f, err := exporter.ParseFormat(*format)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	recs, err := c.service.List(ctx, domain.KeyFilter(*filter))
	if err != nil {
		return err
	}
	st, err := c.service.Stats(ctx)
	if err != nil {
		return err
	}

	if *out == "-" {
		return exporter.Write(c.out, f, recs, &st)
	}
	path := *out
	if path == "" {
		path = f.FileName(c.now())
	}
	if err := exporter.WriteFile(path, f, recs, &st); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Exported %d key(s) to %s\n", len(recs), path)
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
