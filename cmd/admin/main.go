// Command admin is a terminal front for the platform's admin endpoints and
// the live proctoring event stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"exam-proctor-agent/internal/apiclient"
	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/pkg/serverutils"
	"exam-proctor-agent/pkg/events"
	pktNats "exam-proctor-agent/pkg/nats"

	"github.com/fatih/color"
)

const usage = `usage: admin <command> [args]

  summary                 dashboard counters
  exams                   exams available for filtering
  sessions [course_id]    exam sessions, optionally for one course
  session <session_id>    one session with its alerts
  submissions             graded submissions
  export <file.csv>       download every activity log as CSV
  create-test <file.json> create a test from a JSON definition
  watch                   stream proctoring events from NATS
  logout                  end the admin session`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	cfg := config.Load()
	client := apiclient.NewClient(cfg.API)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, client, os.Args[1], os.Args[2:]); err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, client *apiclient.Client, cmd string, args []string) error {
	switch cmd {
	case "summary":
		s, err := client.Summary(ctx)
		if err != nil {
			return err
		}
		color.Cyan("Active sessions: %d", s.ActiveSessions)
		if s.PendingAlerts > 0 {
			color.Yellow("Pending alerts:  %d", s.PendingAlerts)
		} else {
			color.Green("Pending alerts:  0")
		}

	case "exams":
		exams, err := client.Exams(ctx)
		if err != nil {
			return err
		}
		for _, e := range exams {
			fmt.Printf("%s  %s\n", color.CyanString(e.Id), e.Name)
		}

	case "sessions":
		course := ""
		if len(args) > 0 {
			course = args[0]
		}
		rows, err := client.Sessions(ctx, course)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%s  %-24s %-24s %s  %s\n", color.CyanString(r.Id), r.StudentName, r.ExamName, statusColor(r.Status), r.Time)
		}

	case "session":
		if len(args) < 1 {
			return errors.New("session id required")
		}
		d, err := client.Session(ctx, args[0])
		if err != nil {
			return err
		}
		color.Cyan("%s (%s) - %s [%s]", d.StudentName, d.StudentId, d.ExamName, d.ExamCode)
		fmt.Printf("%s -> %s  %s\n", d.StartTime, d.EndTime, statusColor(d.Status))
		printLogs(d.Alerts)

	case "submissions":
		subs, err := client.Submissions(ctx)
		if err != nil {
			return err
		}
		for _, s := range subs {
			color.Cyan("%s  %s / %s  score %s", s.SessionId, s.StudentName, s.ExamName, s.Score)
			for _, a := range s.Answers {
				answer := "-"
				if a.Answer != nil {
					answer = *a.Answer
				}
				fmt.Printf("    %s %s: %s\n", statusColor(a.Status), a.QuestionText, answer)
			}
		}

	case "export":
		if len(args) < 1 {
			return errors.New("output file required")
		}
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := client.ExportAllLogsCSV(ctx, f)
		if err != nil {
			return err
		}
		color.Green("Wrote %d bytes to %s", n, args[0])

	case "create-test":
		if len(args) < 1 {
			return errors.New("definition file required")
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var req dto.CreateTestRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("invalid definition: %w", err)
		}
		if err := serverutils.ValidateRequest(&req); err != nil {
			var verr *serverutils.ValidationError
			if errors.As(err, &verr) {
				for field, msg := range verr.Fields {
					color.Yellow("  %s: %s", field, msg)
				}
			}
			return err
		}
		id, err := client.CreateTest(ctx, req)
		if err != nil {
			return err
		}
		color.Green("Created test %s", id)

	case "watch":
		return watch(ctx, cfg.App.NatsURL)

	case "logout":
		if err := client.Logout(ctx); err != nil {
			return err
		}
		color.Green("Logged out")

	default:
		fmt.Println(usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func watch(ctx context.Context, url string) error {
	sub, err := pktNats.NewSubscriber(url)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = sub.Subscribe(ctx, pktNats.Subject(">"), "", func(_ context.Context, e events.Event) error {
		line := fmt.Sprintf("%s %-18s %v", e.Timestamp().Format("15:04:05"), e.EventType(), e.Payload())
		switch e.EventType() {
		case events.TypeExamLocked:
			color.Red("%s", line)
		case events.TypeProctorViolation:
			color.Yellow("%s", line)
		case events.TypeExamSubmitted:
			color.Green("%s", line)
		default:
			fmt.Println(line)
		}
		return nil
	})
	if err != nil {
		return err
	}

	color.Cyan("Watching proctoring events, Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func statusColor(status string) string {
	switch status {
	case "locked", "flagged", "incorrect":
		return color.RedString(status)
	case "completed", "submitted", "correct":
		return color.GreenString(status)
	default:
		return color.YellowString(status)
	}
}

func printLogs(logs []dto.SessionLog) {
	for _, l := range logs {
		msg := fmt.Sprintf("  %s [%s] %s", l.Timestamp, l.Type, l.Message)
		switch l.Type {
		case "error":
			color.Red("%s", msg)
		case "warning":
			color.Yellow("%s", msg)
		default:
			fmt.Println(msg)
		}
	}
}
