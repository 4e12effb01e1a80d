// Package storage persists the engine's durable state to SQLite. The
// in-memory structures stay authoritative while the process runs; the
// repository is a write-behind journal replayed at startup.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/core"
	"bilancio/internal/goal"
	"bilancio/internal/ledger"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveCategory upserts a category node.
func (r *SQLiteRepository) SaveCategory(ctx context.Context, c core.Category) error {
	parent := ""
	if c.Parent != nil {
		parent = c.Parent.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, kind, parent, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, parent = excluded.parent, deleted = excluded.deleted`,
		c.ID.String(), c.Name, string(c.Kind), parent, boolInt(c.Deleted))
	if err != nil {
		return fmt.Errorf("save category: %w", err)
	}
	return nil
}

// AppendRecord journals one ledger log record. Records are immutable
// once written; the log grows append-only like its in-memory twin.
func (r *SQLiteRepository) AppendRecord(ctx context.Context, rec ledger.Record) error {
	templateID := ""
	if rec.Txn.TemplateID != uuid.Nil {
		templateID = rec.Txn.TemplateID.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_log
			(seq, first_seq, txn_id, amount_cents, posted, category_id, memo, source, template_id, dedup_key, tombstoned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Seq, rec.FirstSeq, rec.Txn.ID.String(), rec.Txn.Amount.Cents,
		rec.Txn.Posted.UTC().Format(timeLayout), rec.Txn.CategoryID.String(),
		rec.Txn.Memo, string(rec.Txn.Source), templateID, rec.Txn.DedupKey,
		boolInt(rec.Tombstoned))
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// SaveTemplate upserts a recurrence template including its watermark.
func (r *SQLiteRepository) SaveTemplate(ctx context.Context, t core.Template) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates
			(id, amount_cents, category_id, memo, unit, interval_count, anchor_day,
			 anchor_weekday, end_date, max_occurrence, created_at, last_through, occurrences)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			category_id = excluded.category_id,
			memo = excluded.memo,
			unit = excluded.unit,
			interval_count = excluded.interval_count,
			anchor_day = excluded.anchor_day,
			anchor_weekday = excluded.anchor_weekday,
			end_date = excluded.end_date,
			max_occurrence = excluded.max_occurrence,
			last_through = excluded.last_through,
			occurrences = excluded.occurrences`,
		t.ID.String(), t.Amount.Cents, t.CategoryID.String(), t.Memo,
		string(t.Schedule.Unit), t.Schedule.Count, t.Schedule.AnchorDay,
		int(t.Schedule.AnchorWeekday), formatTime(t.Schedule.EndDate),
		t.Schedule.MaxOccurrence, formatTime(t.CreatedAt),
		formatTime(t.LastThrough), t.Occurrences)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

// SaveBudget upserts a budget definition.
func (r *SQLiteRepository) SaveBudget(ctx context.Context, b core.Budget) error {
	thresholds := make([]string, len(b.Thresholds))
	for i, t := range b.Thresholds {
		thresholds[i] = strconv.Itoa(t)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets
			(id, category_id, rollup, period_kind, zone, week_start, period_start,
			 period_end, limit_cents, thresholds, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET closed_at = excluded.closed_at`,
		b.ID.String(), b.CategoryID.String(), boolInt(b.Rollup),
		string(b.Period.Kind), b.Period.Zone, int(b.Period.WeekStart),
		formatTime(b.Period.Start), formatTime(b.Period.End),
		b.Limit.Cents, strings.Join(thresholds, ","),
		formatTime(b.CreatedAt), formatTime(b.ClosedAt))
	if err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}

// SaveFiredMark records a budget threshold firing. Replays are ignored
// so the at-most-once guarantee survives races with restarts.
func (r *SQLiteRepository) SaveFiredMark(ctx context.Context, m budget.FiredMark) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO budget_fired (budget_id, period_key, threshold)
		VALUES (?, ?, ?)`,
		m.BudgetID.String(), m.PeriodKey, m.Threshold)
	if err != nil {
		return fmt.Errorf("save fired mark: %w", err)
	}
	return nil
}

// SaveGoal upserts a goal.
func (r *SQLiteRepository) SaveGoal(ctx context.Context, g core.Goal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, name, target_cents, target_date, created_at, sweep_percent)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			target_cents = excluded.target_cents,
			target_date = excluded.target_date,
			sweep_percent = excluded.sweep_percent`,
		g.ID.String(), g.Name, g.Target.Cents, formatTime(g.TargetDate),
		formatTime(g.CreatedAt), g.SweepPercent)
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

// SaveContribution records a contribution link.
func (r *SQLiteRepository) SaveContribution(ctx context.Context, c goal.Contribution) error {
	txnID := ""
	if c.TxnID != uuid.Nil {
		txnID = c.TxnID.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO contributions (id, goal_id, txn_id, amount_cents, at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID.String(), c.GoalID.String(), txnID, c.Amount.Cents, formatTime(c.At))
	if err != nil {
		return fmt.Errorf("save contribution: %w", err)
	}
	return nil
}

// SaveMilestone records a goal milestone firing.
func (r *SQLiteRepository) SaveMilestone(ctx context.Context, m goal.MilestoneMark) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO goal_milestones (goal_id, milestone)
		VALUES (?, ?)`,
		m.GoalID.String(), m.Milestone)
	if err != nil {
		return fmt.Errorf("save milestone: %w", err)
	}
	return nil
}

// Snapshot is everything the repository rehydrates at startup.
type Snapshot struct {
	Categories    []core.Category
	Records       []ledger.Record
	Templates     []core.Template
	Budgets       []core.Budget
	FiredMarks    []budget.FiredMark
	Goals         []core.Goal
	Contributions []goal.Contribution
	Milestones    []goal.MilestoneMark
}

// LoadAll reads the full durable state in dependency order.
func (r *SQLiteRepository) LoadAll(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var err error
	if snap.Categories, err = r.loadCategories(ctx); err != nil {
		return nil, err
	}
	if snap.Records, err = r.loadRecords(ctx); err != nil {
		return nil, err
	}
	if snap.Templates, err = r.loadTemplates(ctx); err != nil {
		return nil, err
	}
	if snap.Budgets, err = r.loadBudgets(ctx); err != nil {
		return nil, err
	}
	if snap.FiredMarks, err = r.loadFiredMarks(ctx); err != nil {
		return nil, err
	}
	if snap.Goals, err = r.loadGoals(ctx); err != nil {
		return nil, err
	}
	if snap.Contributions, err = r.loadContributions(ctx); err != nil {
		return nil, err
	}
	if snap.Milestones, err = r.loadMilestones(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *SQLiteRepository) loadCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, kind, parent, deleted FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var id, name, kind, parent string
		var deleted int
		if err := rows.Scan(&id, &name, &kind, &parent, &deleted); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cat := core.Category{Name: name, Kind: core.Kind(kind), Deleted: deleted != 0}
		if cat.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse category id %q: %w", id, err)
		}
		if parent != "" {
			pid, err := uuid.Parse(parent)
			if err != nil {
				return nil, fmt.Errorf("parse category parent %q: %w", parent, err)
			}
			cat.Parent = &pid
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadRecords(ctx context.Context) ([]ledger.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, first_seq, txn_id, amount_cents, posted, category_id,
		       memo, source, template_id, dedup_key, tombstoned
		FROM transaction_log ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load transaction log: %w", err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		var rec ledger.Record
		var txnID, posted, categoryID, source, templateID string
		var tombstoned int
		if err := rows.Scan(&rec.Seq, &rec.FirstSeq, &txnID, &rec.Txn.Amount.Cents,
			&posted, &categoryID, &rec.Txn.Memo, &source, &templateID,
			&rec.Txn.DedupKey, &tombstoned); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Tombstoned = tombstoned != 0
		rec.Txn.Source = core.SourceKind(source)
		if rec.Txn.ID, err = uuid.Parse(txnID); err != nil {
			return nil, fmt.Errorf("parse txn id %q: %w", txnID, err)
		}
		if rec.Txn.CategoryID, err = uuid.Parse(categoryID); err != nil {
			return nil, fmt.Errorf("parse category id %q: %w", categoryID, err)
		}
		if templateID != "" {
			if rec.Txn.TemplateID, err = uuid.Parse(templateID); err != nil {
				return nil, fmt.Errorf("parse template id %q: %w", templateID, err)
			}
		}
		if rec.Txn.Posted, err = parseTime(posted); err != nil {
			return nil, fmt.Errorf("parse posted %q: %w", posted, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadTemplates(ctx context.Context) ([]core.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, category_id, memo, unit, interval_count, anchor_day,
		       anchor_weekday, end_date, max_occurrence, created_at, last_through, occurrences
		FROM templates`)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	defer rows.Close()

	var out []core.Template
	for rows.Next() {
		var t core.Template
		var id, categoryID, unit, endDate, createdAt, lastThrough string
		var anchorWeekday int
		if err := rows.Scan(&id, &t.Amount.Cents, &categoryID, &t.Memo, &unit,
			&t.Schedule.Count, &t.Schedule.AnchorDay, &anchorWeekday,
			&endDate, &t.Schedule.MaxOccurrence, &createdAt, &lastThrough,
			&t.Occurrences); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.Schedule.Unit = core.IntervalUnit(unit)
		t.Schedule.AnchorWeekday = time.Weekday(anchorWeekday)
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse template id %q: %w", id, err)
		}
		if t.CategoryID, err = uuid.Parse(categoryID); err != nil {
			return nil, fmt.Errorf("parse template category %q: %w", categoryID, err)
		}
		if t.Schedule.EndDate, err = parseTime(endDate); err != nil {
			return nil, fmt.Errorf("parse end date %q: %w", endDate, err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created at %q: %w", createdAt, err)
		}
		if t.LastThrough, err = parseTime(lastThrough); err != nil {
			return nil, fmt.Errorf("parse last through %q: %w", lastThrough, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category_id, rollup, period_kind, zone, week_start, period_start,
		       period_end, limit_cents, thresholds, created_at, closed_at
		FROM budgets`)
	if err != nil {
		return nil, fmt.Errorf("load budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		var id, categoryID, periodKind, thresholds, periodStart, periodEnd, createdAt, closedAt string
		var rollup, weekStart int
		if err := rows.Scan(&id, &categoryID, &rollup, &periodKind, &b.Period.Zone,
			&weekStart, &periodStart, &periodEnd, &b.Limit.Cents, &thresholds,
			&createdAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Rollup = rollup != 0
		b.Period.Kind = core.PeriodKind(periodKind)
		b.Period.WeekStart = time.Weekday(weekStart)
		if b.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse budget id %q: %w", id, err)
		}
		if b.CategoryID, err = uuid.Parse(categoryID); err != nil {
			return nil, fmt.Errorf("parse budget category %q: %w", categoryID, err)
		}
		if b.Period.Start, err = parseTime(periodStart); err != nil {
			return nil, fmt.Errorf("parse period start %q: %w", periodStart, err)
		}
		if b.Period.End, err = parseTime(periodEnd); err != nil {
			return nil, fmt.Errorf("parse period end %q: %w", periodEnd, err)
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created at %q: %w", createdAt, err)
		}
		if b.ClosedAt, err = parseTime(closedAt); err != nil {
			return nil, fmt.Errorf("parse closed at %q: %w", closedAt, err)
		}
		for _, part := range strings.Split(thresholds, ",") {
			if part == "" {
				continue
			}
			t, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("parse threshold %q: %w", part, err)
			}
			b.Thresholds = append(b.Thresholds, t)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadFiredMarks(ctx context.Context) ([]budget.FiredMark, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT budget_id, period_key, threshold FROM budget_fired`)
	if err != nil {
		return nil, fmt.Errorf("load fired marks: %w", err)
	}
	defer rows.Close()

	var out []budget.FiredMark
	for rows.Next() {
		var m budget.FiredMark
		var budgetID string
		if err := rows.Scan(&budgetID, &m.PeriodKey, &m.Threshold); err != nil {
			return nil, fmt.Errorf("scan fired mark: %w", err)
		}
		if m.BudgetID, err = uuid.Parse(budgetID); err != nil {
			return nil, fmt.Errorf("parse fired budget id %q: %w", budgetID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadGoals(ctx context.Context) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, target_cents, target_date, created_at, sweep_percent FROM goals`)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		var g core.Goal
		var id, targetDate, createdAt string
		if err := rows.Scan(&id, &g.Name, &g.Target.Cents, &targetDate, &createdAt, &g.SweepPercent); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		if g.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse goal id %q: %w", id, err)
		}
		if g.TargetDate, err = parseTime(targetDate); err != nil {
			return nil, fmt.Errorf("parse target date %q: %w", targetDate, err)
		}
		if g.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created at %q: %w", createdAt, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadContributions(ctx context.Context) ([]goal.Contribution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, goal_id, txn_id, amount_cents, at FROM contributions`)
	if err != nil {
		return nil, fmt.Errorf("load contributions: %w", err)
	}
	defer rows.Close()

	var out []goal.Contribution
	for rows.Next() {
		var c goal.Contribution
		var id, goalID, txnID, at string
		if err := rows.Scan(&id, &goalID, &txnID, &c.Amount.Cents, &at); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse contribution id %q: %w", id, err)
		}
		if c.GoalID, err = uuid.Parse(goalID); err != nil {
			return nil, fmt.Errorf("parse contribution goal %q: %w", goalID, err)
		}
		if txnID != "" {
			if c.TxnID, err = uuid.Parse(txnID); err != nil {
				return nil, fmt.Errorf("parse contribution txn %q: %w", txnID, err)
			}
		}
		if c.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse contribution time %q: %w", at, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadMilestones(ctx context.Context) ([]goal.MilestoneMark, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT goal_id, milestone FROM goal_milestones`)
	if err != nil {
		return nil, fmt.Errorf("load milestones: %w", err)
	}
	defer rows.Close()

	var out []goal.MilestoneMark
	for rows.Next() {
		var m goal.MilestoneMark
		var goalID string
		if err := rows.Scan(&goalID, &m.Milestone); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		if m.GoalID, err = uuid.Parse(goalID); err != nil {
			return nil, fmt.Errorf("parse milestone goal %q: %w", goalID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
