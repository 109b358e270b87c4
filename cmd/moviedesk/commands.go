package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"moviecat-admin/internal/bootstrap"
	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/detail"
	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/picker"
	"moviecat-admin/pkg/relation"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
)

var errUsage = errors.New("usage")

type cli struct {
	container *bootstrap.Container
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return c.login(ctx, args)
	case "show":
		return c.show(ctx, args)
	case "set":
		return c.set(ctx, args)
	case "search":
		return c.search(ctx, args)
	case "link":
		return c.link(ctx, args)
	case "unlink":
		return c.unlink(ctx, args)
	case "delete":
		return c.remove(ctx, args)
	default:
		return errUsage
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *username == "" {
		if err := survey.AskOne(&survey.Input{Message: "Username:"}, username, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}
	var password string
	if err := survey.AskOne(&survey.Password{Message: "Password:"}, &password, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	token, err := c.container.Client.Login(ctx, *username, password)
	if err != nil {
		return err
	}
	if err := c.container.Session.Issue(token); err != nil {
		return err
	}

	if c.container.Session.IsStaff() {
		color.Green("✓ Signed in as %s (staff)", *username)
	} else {
		color.Yellow("✓ Signed in as %s (read only: not a staff account)", *username)
	}
	fmt.Printf("export CATALOG_TOKEN=%s\n", token)
	return nil
}

func (c *cli) show(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	output := fs.String("o", "text", "output format: text, json or yaml")
	kind, id, rest, err := recordArgs(args)
	if err != nil {
		return err
	}
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}

	page, err := c.open(ctx, kind, id)
	if err != nil {
		return err
	}
	defer page.Close()

	return printRecord(page.Record(), *output)
}

func (c *cli) set(ctx context.Context, args []string) error {
	kind, id, rest, err := recordArgs(args)
	if err != nil || len(rest) != 2 {
		return errUsage
	}
	field, value := rest[0], rest[1]

	page, err := c.open(ctx, kind, id)
	if err != nil {
		return err
	}
	defer page.Close()

	fields := page.Fields()
	if err := fields.Toggle(field); err != nil {
		return fmt.Errorf("%s has no field %q", kind, field)
	}
	fields.SetDraft(field, value)
	if err := page.CommitField(ctx, field); err != nil {
		return err
	}

	color.Green("✓ %s updated", field)
	return printRecord(page.Record(), "text")
}

func (c *cli) search(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	rel := entity.RelationKind(args[0])
	if !rel.Valid() {
		return errUsage
	}
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	pages := fs.Int("pages", 1, "number of pages to load")
	term := ""
	rest := args[1:]
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		term, rest = rest[0], rest[1:]
	}
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}

	q := picker.New(rel, c.container.Client,
		picker.WithDebounce(0),
		picker.WithPerPage(c.container.Config.Picker.PerPage),
		picker.WithLogger(c.container.Logger),
	)
	defer q.Close()

	snap, err := searchAndWait(ctx, q, func() error { return q.Open(ctx, nil) }, term)
	if err != nil {
		return err
	}
	for i := 1; i < *pages && snap.HasMore; i++ {
		if err := q.FetchNextPage(ctx); err != nil {
			return err
		}
		snap = q.Snapshot()
	}

	printResults(snap)
	return nil
}

func (c *cli) link(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	movieId, rel := args[0], entity.RelationKind(args[1])
	if !rel.Valid() {
		return errUsage
	}

	page, err := c.open(ctx, entity.KindMovie, movieId)
	if err != nil {
		return err
	}
	defer page.Close()

	var term string
	if err := survey.AskOne(&survey.Input{Message: fmt.Sprintf("Search %s (empty for all):", rel)}, &term); err != nil {
		return err
	}

	q := page.Picker(rel)
	snap, err := searchAndWait(ctx, q, func() error { return page.OpenPicker(ctx, rel) }, term)
	if err != nil {
		return err
	}
	for snap.HasMore && len(snap.Results) < 3*c.container.Config.Picker.PerPage {
		if err := page.OnPickerScroll(ctx, rel, detail.Viewport{}); err != nil {
			return err
		}
		snap = q.Snapshot()
	}
	if len(snap.Results) == 0 {
		color.Yellow("No %s left to link", rel)
		return nil
	}

	options := make([]string, 0, len(snap.Results))
	byOption := make(map[string]entity.RelatedEntity, len(snap.Results))
	for _, r := range snap.Results {
		label := fmt.Sprintf("%s  #%s", r.DisplayName, r.ID)
		options = append(options, label)
		byOption[label] = r
	}
	var chosen []string
	if err := survey.AskOne(&survey.MultiSelect{Message: "Select " + rel.String() + ":", Options: options, PageSize: 15}, &chosen); err != nil {
		return err
	}

	for _, label := range chosen {
		e := byOption[label]
		if err := q.ToggleSelect(e); err != nil {
			return err
		}
		if rel.HasRole() {
			var role string
			if err := survey.AskOne(&survey.Input{Message: "Role of " + e.DisplayName + ":"}, &role); err != nil {
				return err
			}
			q.SetRole(e.ID, strings.TrimSpace(role))
		}
	}

	result, err := page.ConfirmPicker(ctx, rel)
	printBatch(result)
	if err != nil {
		return err
	}
	return printRecord(page.Record(), "text")
}

func (c *cli) unlink(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	movieId, rel, childId := args[0], entity.RelationKind(args[1]), args[2]
	if !rel.Valid() {
		return errUsage
	}

	page, err := c.open(ctx, entity.KindMovie, movieId)
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.RemoveRelation(ctx, rel, childId); err != nil {
		return err
	}
	color.Green("✓ Unlinked %s #%s", rel, childId)
	return printRecord(page.Record(), "text")
}

func (c *cli) remove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "skip confirmation")
	kind, id, rest, err := recordArgs(args)
	if err != nil {
		return err
	}
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}

	page, err := c.open(ctx, kind, id)
	if err != nil {
		return err
	}
	defer page.Close()

	if !*yes {
		name := entity.FormatValue(page.Record().Fields["title"])
		if name == "" {
			name = entity.FormatValue(page.Record().Fields["name"])
		}
		confirmed := false
		prompt := &survey.Confirm{Message: fmt.Sprintf("Delete %s #%s %q?", kind, id, name)}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			color.Yellow("Cancelled")
			return nil
		}
	}

	if err := page.Delete(ctx); err != nil {
		return err
	}
	color.Green("✓ Deleted %s #%s", kind, id)
	return nil
}

// open loads a record page, failing when it does not reach Ready.
func (c *cli) open(ctx context.Context, kind entity.Kind, id string) (*detail.Controller, error) {
	page := c.container.NewDetail(kind, id)
	if err := page.Load(ctx); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

// searchAndWait opens q through open and, for a non-empty term, waits for the
// debounced search to settle.
func searchAndWait(ctx context.Context, q *picker.Query, open func() error, term string) (picker.Snapshot, error) {
	if err := open(); err != nil {
		return picker.Snapshot{}, err
	}
	if term == "" {
		return q.Snapshot(), nil
	}

	q.SetSearchTerm(term)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := q.Snapshot()
		switch {
		case snap.Pending || snap.State == picker.StateLoading || snap.State == picker.StateIdle:
		case snap.State == picker.StateError:
			return snap, snap.Err
		default:
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

func recordArgs(args []string) (entity.Kind, string, []string, error) {
	if len(args) < 2 {
		return "", "", nil, errUsage
	}
	kind := entity.Kind(args[0])
	if !kind.Valid() {
		return "", "", nil, errUsage
	}
	return kind, args[1], args[2:], nil
}

// describe renders an error for the terminal.
func describe(err error) string {
	var (
		verr *apperror.ValidationError
		perr *apperror.PermissionError
		nerr *apperror.NetworkError
	)
	switch {
	case errors.As(err, &verr):
		return "Invalid " + verr.Field + ": " + verr.Message
	case errors.As(err, &perr):
		return "Permission denied: sign in with a staff account (moviedesk login)"
	case errors.Is(err, apperror.ErrNotFound):
		return err.Error()
	case errors.Is(err, picker.ErrEmptySelection):
		return "Nothing selected"
	case errors.Is(err, detail.ErrBusy):
		return "Another relation change is still running"
	case errors.As(err, &nerr):
		if nerr.Message != "" {
			return nerr.Message
		}
		return apperror.GenericMessage(nerr.Status)
	default:
		return err.Error()
	}
}

func printBatch(result relation.BatchResult) {
	for _, id := range result.Applied {
		color.Green("  ✓ linked #%s", id)
	}
	if result.Failed != "" {
		color.Red("  ✗ failed #%s", result.Failed)
	}
	for _, id := range result.Skipped {
		color.Yellow("  - skipped #%s", id)
	}
}
