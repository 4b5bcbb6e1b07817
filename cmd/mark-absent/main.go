// Command mark-absent inserts "absent" rows for every active employee with
// no attendance on a given day.  Run it once a day after the check-in
// window closes, e.g. from cron shortly after midnight.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/database"
	"github.com/iliyamo/qr-attendance/internal/logger"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	date    string
	timeout time.Duration
	dryRun  bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("mark-absent", pflag.ContinueOnError)
	fs.StringVar(&o.date, "date", "", "day to process as YYYY-MM-DD (default: yesterday)")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Minute, "abort the sweep after this long")
	fs.BoolVar(&o.dryRun, "dry-run", false, "resolve the date and exit without writing")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return o, nil
}

// resolveDate returns midnight of raw in loc, or of the day before now when
// raw is empty.
func resolveDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if raw == "" {
		y, m, d := now.In(loc).AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", raw)
	}
	return t, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err == pflag.ErrHelp {
		return nil
	}
	if err != nil {
		return err
	}

	dotEnvErr := config.LoadDotEnv()
	log, err := logger.New(config.Env())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if dotEnvErr != nil {
		log.Warn(".env not loaded", zap.Error(dotEnvErr))
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	attCfg := config.LoadAttendanceConfig()

	date, err := resolveDate(opts.date, time.Now(), attCfg.Location)
	if err != nil {
		return err
	}
	if opts.dryRun {
		log.Info("dry run", zap.String("date", date.Format("2006-01-02")))
		return nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer db.Close()

	var audit service.AuditSink = service.NewLogAuditSink(log)
	if auditCfg := config.LoadAuditConfig(); auditCfg.Sink == "amqp" {
		audit = service.NewAMQPAuditSink(auditCfg.AMQPURL, auditCfg.Queue, log).WithTimeout(auditCfg.PublishTimeout)
	}
	sweeper := service.NewAbsenceSweeper(
		repository.NewUserRepo(db),
		repository.NewAttendanceRepo(db, attCfg.Location),
		audit,
		attCfg.Location,
		clock.Real(),
		log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	n, err := sweeper.MarkAbsent(ctx, date)
	if err != nil {
		return err
	}
	fmt.Printf("%s: marked %d employee(s) absent\n", date.Format("2006-01-02"), n)
	return nil
}
