package command

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE STUDENT COMMAND
// Registers a learner with zeroed counters. Identity comes from the caller's
// authentication layer; the engine only stores the id and a display name.
// ══════════════════════════════════════════════════════════════════════════════

// MaxDisplayNameLength bounds display names, in runes.
const MaxDisplayNameLength = 64

// CreateStudentCommand contains the data to register a student.
type CreateStudentCommand struct {
	StudentID   string
	DisplayName string
}

// Validate validates the command.
func (c CreateStudentCommand) Validate() error {
	const op = "CreateStudent"
	if strings.TrimSpace(c.StudentID) == "" {
		return invalid(op, "student_id is required")
	}
	if utf8.RuneCountInString(strings.TrimSpace(c.DisplayName)) > MaxDisplayNameLength {
		return invalid(op, "display_name is longer than %d characters", MaxDisplayNameLength)
	}
	return nil
}

// CreateStudentHandler handles the CreateStudentCommand.
type CreateStudentHandler struct {
	store     progression.Store
	publisher shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger
	tx        txRunner
}

// NewCreateStudentHandler creates a new CreateStudentHandler.
func NewCreateStudentHandler(store progression.Store, publisher shared.EventPublisher, clock timeutil.Clock, log *logger.Logger) *CreateStudentHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("create_student"))

	return &CreateStudentHandler{
		store:     store,
		publisher: publisher,
		clock:     clock,
		log:       log,
		tx:        newTxRunner(store, DefaultTxAttempts, log, "create_student"),
	}
}

// Handle executes the create student command. Returns ErrStudentExists if
// the id is taken.
func (h *CreateStudentHandler) Handle(ctx context.Context, cmd CreateStudentCommand) (*progression.Student, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	st, err := progression.NewStudent(cmd.StudentID, cmd.DisplayName, h.clock.Now())
	if err != nil {
		return nil, err
	}

	err = h.tx.run(ctx, func(tx progression.Tx) error {
		return tx.CreateStudent(ctx, st.Clone())
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("student registered", logger.StudentID(st.ID))
	publishAll(h.publisher, h.log, "", []shared.Event{progression.NewStudentRegisteredEvent(st)})
	return st, nil
}
