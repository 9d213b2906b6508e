// Package jobs runs the periodic maintenance tasks: promoting appointments
// that reach their check-in window into the waiting queue, and closing the
// queues of past days.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/realtime"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CheckInSpec    = "@every 1m"
	CloseQueueSpec = "5 0 * * *"

	DefaultCheckInMargin = 30 * time.Minute

	runTimeout = 30 * time.Second
)

type AppointmentStore interface {
	ListDueForCheckIn(ctx context.Context, day time.Time, from, to string) ([]models.Appointment, error)
	TransitionStatus(ctx context.Context, id primitive.ObjectID, to string, upd models.AppointmentStatusUpdate) (*models.Appointment, error)
}

type QueueStore interface {
	ListOpenBefore(ctx context.Context, day time.Time) ([]models.Queue, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, to string) (*models.Queue, error)
}

type Scheduler struct {
	cron         *cron.Cron
	appointments AppointmentStore
	queues       QueueStore
	events       realtime.Publisher
	log          zerolog.Logger
	loc          *time.Location

	CheckInMargin time.Duration
	Now           func() time.Time
}

// New builds a scheduler running in the clinic time zone. events may be nil.
func New(appointments AppointmentStore, queues QueueStore, events realtime.Publisher, loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log = log.With().Str("component", "jobs").Logger()
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		appointments:  appointments,
		queues:        queues,
		events:        events,
		log:           log,
		loc:           loc,
		CheckInMargin: DefaultCheckInMargin,
		Now:           time.Now,
	}
}

// Start registers both jobs and starts the cron loop in its own goroutine.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(CheckInSpec, s.run("check-in", s.PromoteCheckIns)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(CloseQueueSpec, s.run("close-queues", s.CloseStaleQueues)); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stopped before running jobs finished")
	}
}

func (s *Scheduler) run(name string, job func(context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		n, err := job(ctx)
		if err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		if n > 0 {
			s.log.Info().Str("job", name).Int("changed", n).Msg("job finished")
		}
	}
}

// PromoteCheckIns moves scheduled appointments starting within CheckInMargin
// of now into in_queue. It returns how many were moved.
func (s *Scheduler) PromoteCheckIns(ctx context.Context) (int, error) {
	day, from, to := models.CheckInWindow(s.Now(), s.loc, s.CheckInMargin)
	due, err := s.appointments.ListDueForCheckIn(ctx, day, from, to)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, a := range due {
		updated, err := s.appointments.TransitionStatus(ctx, a.ID, models.StatusInQueue, models.AppointmentStatusUpdate{})
		if errors.Is(err, models.ErrInvalidTransition) {
			// changed by someone else since the listing
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("appointment", a.ID.Hex()).Msg("promote appointment")
			continue
		}
		moved++
		s.publish(ctx, realtime.EventAppointmentStatus, "appointment", updated.ID, updated, appointmentTopics(updated))
	}
	return moved, nil
}

// CloseStaleQueues closes every queue of a day before today that is still
// active or paused. It returns how many were closed.
func (s *Scheduler) CloseStaleQueues(ctx context.Context) (int, error) {
	today := models.Today(s.Now(), s.loc)
	stale, err := s.queues.ListOpenBefore(ctx, today)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, q := range stale {
		updated, err := s.queues.SetStatus(ctx, q.ID, models.QueueClosed)
		if errors.Is(err, models.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("queue", q.ID.Hex()).Msg("close queue")
			continue
		}
		closed++
		shared := updated.VisibleTo(primitive.NilObjectID)
		s.publish(ctx, realtime.EventQueueUpdated, "queue", updated.ID, shared,
			[]string{realtime.HospitalTopic(updated.HospitalID.Hex()), realtime.DoctorTopic(updated.DoctorID.Hex())})
	}
	return closed, nil
}

func (s *Scheduler) publish(ctx context.Context, eventType, resourceType string, id primitive.ObjectID, payload interface{}, topics []string) {
	if s.events == nil {
		return
	}
	events, err := realtime.NewEvent(eventType, resourceType, id.Hex(), payload, topics...)
	if err != nil {
		s.log.Error().Err(err).Msg("build event")
		return
	}
	for _, e := range events {
		if err := s.events.Publish(ctx, e); err != nil {
			s.log.Error().Err(err).Str("topic", e.Topic).Msg("publish event")
		}
	}
}

func appointmentTopics(a *models.Appointment) []string {
	topics := []string{realtime.DoctorTopic(a.DoctorID.Hex()), realtime.PatientTopic(a.PatientID.Hex())}
	if a.HospitalID != nil {
		topics = append(topics, realtime.HospitalTopic(a.HospitalID.Hex()))
	}
	return topics
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
