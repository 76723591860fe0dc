package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/devinleonhart/minerva/internal/application/planner"
	"github.com/devinleonhart/minerva/internal/domain"
)

// errUsage marks argument errors so the caller can print command help.
var errUsage = errors.New("usage")

// app binds the planner, its lifecycle manager and the optional archive to
// the command table. Every command writes one JSON document per invocation.
type app struct {
	planner   *planner.Planner
	manager   *planner.Manager
	persister *planner.Persister
	archive   planner.ArchiveStore
	now       func() time.Time
	out       io.Writer
}

type command struct {
	usage   string
	mutates bool
	run     func(a *app, ctx context.Context, args []string) (any, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"init":      {usage: "init [YYYY-MM-DD]", mutates: true, run: (*app).cmdInit},
		"show":      {usage: "show", run: (*app).cmdShow},
		"schedule":  {usage: "schedule [-notes text] [-details json] <type> <day> <slot>", mutates: true, run: (*app).cmdSchedule},
		"undo":      {usage: "undo", mutates: true, run: (*app).cmdUndo},
		"notes":     {usage: "notes <day> <slot> <text...>", mutates: true, run: (*app).cmdNotes},
		"slots":     {usage: "slots <day>", run: (*app).cmdSlots},
		"remaining": {usage: "remaining <day>", run: (*app).cmdRemaining},
		"tasks":     {usage: "tasks <day>", run: (*app).cmdTasks},
		"catalog":   {usage: "catalog", run: (*app).cmdCatalog},
		"status":    {usage: "status", run: (*app).cmdStatus},
		"save":      {usage: "save", run: (*app).cmdSave},
		"load":      {usage: "load [id|YYYY-MM-DD]", run: (*app).cmdLoad},
		"delete":    {usage: "delete", run: (*app).cmdDelete},
		"cleanup":   {usage: "cleanup", run: (*app).cmdCleanup},
		"archives":  {usage: "archives [id]", run: (*app).cmdArchives},
	}
}

func newApp(repo planner.Repository, catalog *planner.Catalog, archive planner.ArchiveStore, persister *planner.Persister, now func() time.Time, out io.Writer) *app {
	opts := []planner.ManagerOption{
		planner.WithFlusher(persister),
		planner.WithManagerClock(now),
	}
	if archive != nil {
		opts = append(opts, planner.WithArchiver(archive))
	}

	p := planner.NewPlanner(catalog, persister, planner.WithClock(now))
	return &app{
		planner:   p,
		manager:   planner.NewManager(repo, p, opts...),
		persister: persister,
		archive:   archive,
		now:       now,
		out:       out,
	}
}

// execute runs one command. Background saves triggered by a mutating command
// are flushed before returning so conflicts reach the caller.
func (a *app) execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", errUsage)
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	result, err := cmd.run(a, ctx, args[1:])
	if err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("%w: %s", err, cmd.usage)
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	if err := a.write(result); err != nil {
		return err
	}

	if cmd.mutates {
		if err := a.persister.Flush(ctx); err != nil {
			return fmt.Errorf("%s: background save failed: %w", name, err)
		}
	}
	return nil
}

// session reads one command per line until EOF or "quit". Errors are written
// as JSON and do not end the session; saves stay in the background.
func (a *app) session(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			break
		}

		cmd, ok := commands[args[0]]
		if !ok {
			a.writeError(fmt.Errorf("unknown command %q", args[0]))
			continue
		}

		result, err := cmd.run(a, ctx, args[1:])
		if err != nil {
			if errors.Is(err, errUsage) {
				err = fmt.Errorf("%w: %s", err, cmd.usage)
			}
			a.writeError(err)
			continue
		}
		if err := a.write(result); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read session input: %w", err)
	}

	return a.persister.Flush(ctx)
}

// autoload restores the stored week matching criterion, if any.
func (a *app) autoload(ctx context.Context, criterion domain.WeekCriterion) error {
	_, err := a.manager.Load(ctx, criterion)
	return err
}

func (a *app) write(v any) error {
	if err := json.NewEncoder(a.out).Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (a *app) writeError(err error) {
	_ = a.write(errorOutput{Error: err.Error()})
}

type errorOutput struct {
	Error string `json:"error"`
}

type scheduleOutput struct {
	Scheduled      bool   `json:"scheduled"`
	Reason         string `json:"reason,omitempty"`
	TaskType       string `json:"taskType"`
	Day            int    `json:"day"`
	Slot           string `json:"slot"`
	RemainingUnits int    `json:"remainingUnits"`
}

type undoOutput struct {
	Removed bool `json:"removed"`
}

type dayOutput[T any] struct {
	Day   int `json:"day"`
	Value T   `json:"value"`
}

type statusOutput struct {
	State       string `json:"state"`
	WeekID      string `json:"weekId,omitempty"`
	WeekStart   string `json:"weekStart,omitempty"`
	Pending     bool   `json:"pending"`
	LastSavedID string `json:"lastSavedId,omitempty"`
}

type saveOutput struct {
	ID string `json:"id"`
}

type loadOutput struct {
	Found bool         `json:"found"`
	Week  *domain.Week `json:"week,omitempty"`
}

func (a *app) cmdInit(ctx context.Context, args []string) (any, error) {
	var ref time.Time
	switch len(args) {
	case 0:
	case 1:
		date, err := domain.ParseDate(args[0])
		if err != nil {
			return nil, err
		}
		ref = date
	default:
		return nil, errUsage
	}
	return a.manager.InitializeWeek(ctx, ref)
}

func (a *app) cmdShow(_ context.Context, args []string) (any, error) {
	if len(args) != 0 {
		return nil, errUsage
	}
	week, ok := a.planner.Week()
	if !ok {
		return nil, domain.ErrWeekNotLoaded
	}
	return week, nil
}

func (a *app) cmdSchedule(ctx context.Context, args []string) (any, error) {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	notes := fs.String("notes", "", "free-form notes for the task")
	details := fs.String("details", "", "JSON payload stored with the task")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 3 {
		return nil, errUsage
	}

	taskType := fs.Arg(0)
	day, err := a.parseDay(fs.Arg(1))
	if err != nil {
		return nil, err
	}
	slot, err := domain.ParseSlot(fs.Arg(2))
	if err != nil {
		return nil, err
	}

	var payload json.RawMessage
	if *details != "" {
		if !json.Valid([]byte(*details)) {
			return nil, fmt.Errorf("details must be valid JSON")
		}
		payload = json.RawMessage(*details)
	}

	out := scheduleOutput{TaskType: taskType, Day: day, Slot: slot.String()}
	if reason := a.planner.CheckSchedule(taskType, day, slot); reason != nil {
		out.Reason = reason.Error()
		out.RemainingUnits = a.planner.GetRemainingTimeUnits(day)
		return out, nil
	}

	out.Scheduled = a.planner.ScheduleTask(ctx, taskType, day, slot, &planner.TaskDetails{Notes: *notes, Payload: payload})
	out.RemainingUnits = a.planner.GetRemainingTimeUnits(day)
	return out, nil
}

func (a *app) cmdUndo(ctx context.Context, args []string) (any, error) {
	if len(args) != 0 {
		return nil, errUsage
	}
	return undoOutput{Removed: a.planner.RemoveLastTask(ctx)}, nil
}

func (a *app) cmdNotes(ctx context.Context, args []string) (any, error) {
	if len(args) < 2 {
		return nil, errUsage
	}
	day, err := a.parseDay(args[0])
	if err != nil {
		return nil, err
	}
	slot, err := domain.ParseSlot(args[1])
	if err != nil {
		return nil, err
	}
	if err := a.planner.UpdateNotes(ctx, day, slot, strings.Join(args[2:], " ")); err != nil {
		return nil, err
	}
	week, _ := a.planner.Week()
	return week.Day(day).Task(slot), nil
}

func (a *app) cmdSlots(_ context.Context, args []string) (any, error) {
	day, err := a.dayArg(args)
	if err != nil {
		return nil, err
	}
	slots := a.planner.GetAvailableTimeSlots(day)
	if slots == nil {
		slots = []domain.Slot{}
	}
	return dayOutput[[]domain.Slot]{Day: day, Value: slots}, nil
}

func (a *app) cmdRemaining(_ context.Context, args []string) (any, error) {
	day, err := a.dayArg(args)
	if err != nil {
		return nil, err
	}
	return dayOutput[int]{Day: day, Value: a.planner.GetRemainingTimeUnits(day)}, nil
}

func (a *app) cmdTasks(_ context.Context, args []string) (any, error) {
	day, err := a.dayArg(args)
	if err != nil {
		return nil, err
	}
	defs := a.planner.GetAvailableTasks(day)
	if defs == nil {
		defs = []domain.TaskDefinition{}
	}
	return dayOutput[[]domain.TaskDefinition]{Day: day, Value: defs}, nil
}

func (a *app) cmdCatalog(_ context.Context, args []string) (any, error) {
	if len(args) != 0 {
		return nil, errUsage
	}
	return a.planner.Catalog().List(), nil
}

func (a *app) cmdStatus(_ context.Context, args []string) (any, error) {
	if len(args) != 0 {
		return nil, errUsage
	}
	out := statusOutput{
		State:       a.planner.State().String(),
		Pending:     a.persister.Pending(),
		LastSavedID: a.persister.LastSavedID(),
	}
	if week, ok := a.planner.Week(); ok {
		out.WeekID = week.ID
		out.WeekStart = week.StartDate.Format(domain.DateLayout)
	}
	return out, nil
}

func (a *app) cmdSave(ctx context.Context, args []string) (any, error) {
	if len(args) != 0 {
		return nil, errUsage
	}
	// Let queued snapshots land first so they cannot overwrite this save.
	if err := a.persister.Flush(ctx); err != nil && ctx.Err() != nil {
		return nil, err
	}
	id, err := a.manager.Save(ctx)
	if err != nil {
		return nil, err
	}
	return saveOutput{ID: id}, nil
}

func (a *app) cmdLoad(ctx context.Context, args []string) (any, error) {
	criterion := domain.CurrentWeek(a.now())
	switch len(args) {
	case 0:
	case 1:
		criterion = parseCriterion(args[0])
	default:
		return nil, errUsage
	}

	found, err := a.manager.Load(ctx, criterion)
	if err != nil {
		return nil, err
	}
	out := loadOutput{Found: found}
	if found {
		out.Week, _ = a.planner.Week()
	}
	return out, nil
}

func (a *app) cmdDelete(ctx context.Context, args []string) (any, error) {
	if len(args) != 0 {
		return nil, errUsage
	}
	return a.manager.DeleteCurrentWeek(ctx)
}

func (a *app) cmdCleanup(ctx context.Context, args []string) (any, error) {
	if len(args) != 0 {
		return nil, errUsage
	}
	return a.manager.Cleanup(ctx)
}

func (a *app) cmdArchives(ctx context.Context, args []string) (any, error) {
	if a.archive == nil {
		return nil, errors.New("archiving is disabled (set MINERVA_ARCHIVE_TYPE)")
	}
	switch len(args) {
	case 0:
		weeks, err := a.archive.ListArchived(ctx)
		if err != nil {
			return nil, err
		}
		if weeks == nil {
			weeks = []*domain.Week{}
		}
		return weeks, nil
	case 1:
		return a.archive.GetArchived(ctx, args[0])
	default:
		return nil, errUsage
	}
}

func (a *app) dayArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	return a.parseDay(args[0])
}

// parseDay accepts a day index or, when a week is loaded, a day name.
func (a *app) parseDay(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if !domain.ValidDay(n) {
			return 0, fmt.Errorf("%w: %d", domain.ErrInvalidDay, n)
		}
		return n, nil
	}

	if week, ok := a.planner.Week(); ok {
		idx := slices.IndexFunc(week.Days[:], func(d domain.Day) bool {
			return strings.EqualFold(d.Name, s)
		})
		if idx >= 0 {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrInvalidDay, s)
}

// parseCriterion treats a date-shaped argument as a week start and anything
// else as a stored week id.
func parseCriterion(s string) domain.WeekCriterion {
	if date, err := domain.ParseDate(s); err == nil {
		return domain.WeekByDate(date)
	}
	return domain.WeekByID(s)
}
