package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/proctorhq/examengine/go/internal/dbconfig"
	"github.com/proctorhq/examengine/go/internal/exam/questions"
	"github.com/proctorhq/examengine/go/internal/exam/session"
	"github.com/proctorhq/examengine/go/internal/exam/violation"
	"github.com/proctorhq/examengine/go/internal/exam/window"
)

// drivectl is the ops console: list drive windows, inspect a drive's
// sessions, and dump a session's violation counts.
//
//	drivectl windows
//	drivectl sessions -drive <drive_id>
//	drivectl violations -session <session_id>

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbconfig.NewConfigFromEnv().DSN())
	if err != nil {
		fatal("connect to database: %v", err)
	}
	defer pool.Close()

	switch os.Args[1] {
	case "windows":
		listWindows(ctx, pool)
	case "sessions":
		fs := flag.NewFlagSet("sessions", flag.ExitOnError)
		drive := fs.String("drive", "", "drive UUID")
		fs.Parse(os.Args[2:])
		driveID, err := uuid.Parse(*drive)
		if err != nil {
			fatal("invalid -drive: %v", err)
		}
		listSessions(ctx, pool, driveID)
	case "violations":
		fs := flag.NewFlagSet("violations", flag.ExitOnError)
		sess := fs.String("session", "", "session UUID")
		fs.Parse(os.Args[2:])
		sessionID, err := uuid.Parse(*sess)
		if err != nil {
			fatal("invalid -session: %v", err)
		}
		listViolations(ctx, pool, sessionID)
	default:
		usage()
		os.Exit(2)
	}
}

func listWindows(ctx context.Context, pool *pgxpool.Pool) {
	repo := window.NewRepository(pool)
	windows, err := repo.ListWindows(ctx)
	if err != nil {
		fatal("list windows: %v", err)
	}

	color.Cyan("\nDrive Windows")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Drive", "State", "Scheduled Start", "Scheduled End", "Actual Start", "Actual End", "Duration (m)"})

	for _, w := range windows {
		table.Append([]string{
			w.DriveID.String(),
			string(w.State),
			fmtTime(&w.ScheduledStart),
			fmtTime(&w.ScheduledEnd),
			fmtTime(w.ActualStart),
			fmtTime(w.ActualEnd),
			fmt.Sprintf("%d", w.DurationMinutes),
		})
	}
	table.Render()
}

func listSessions(ctx context.Context, pool *pgxpool.Pool, driveID uuid.UUID) {
	repo := session.NewRepository(pool)
	sessions, err := repo.ListByDrive(ctx, driveID)
	if err != nil {
		fatal("list sessions: %v", err)
	}
	qrepo := questions.NewRepository(pool)
	total, err := qrepo.CountQuestions(ctx, driveID)
	if err != nil {
		fatal("count questions: %v", err)
	}

	color.Cyan("\nSessions for drive %s (%d questions)", driveID, total)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Session", "Student", "State", "Started", "Expected End", "Submitted", "DQ Reason"})

	for _, s := range sessions {
		reason := ""
		if s.DisqualificationReason != nil {
			reason = *s.DisqualificationReason
		}
		table.Append([]string{
			s.ID.String(),
			s.StudentID.String(),
			string(s.State),
			fmtTime(s.StartedAt),
			fmtTime(s.ExpectedEnd),
			fmtTime(s.SubmittedAt),
			reason,
		})
	}
	table.Render()
}

func listViolations(ctx context.Context, pool *pgxpool.Pool, sessionID uuid.UUID) {
	repo := violation.NewRepository(pool)
	counts, err := repo.GetCounts(ctx, sessionID)
	if err != nil {
		fatal("fetch violations: %v", err)
	}

	color.Yellow("\nViolations for session %s (total %d)", sessionID, counts.Total())
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Kind", "Count"})
	for kind, count := range counts {
		table.Append([]string{string(kind), fmt.Sprintf("%d", count)})
	}
	table.Render()
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: drivectl <windows|sessions -drive <id>|violations -session <id>>")
}

func fatal(format string, args ...any) {
	color.Red(format, args...)
	os.Exit(1)
}
