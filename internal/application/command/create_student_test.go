package command

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
)

func TestCreateStudent(t *testing.T) {
	f := newFixture(t)

	st, err := f.create.Handle(f.ctx, CreateStudentCommand{StudentID: "kid-1", DisplayName: "  Ada  "})
	require.NoError(t, err)

	assert.Equal(t, "kid-1", st.ID)
	assert.Equal(t, "Ada", st.DisplayName)
	assert.Equal(t, 1, st.Level)
	assert.Zero(t, st.Coins)
	assert.Zero(t, st.XP)
	assert.Zero(t, st.CurrentStreak)
	assert.Nil(t, st.LastActivityDate)
	assert.Equal(t, day1, st.CreatedAt)

	stored := f.student(t, "kid-1")
	assert.Equal(t, st.DisplayName, stored.DisplayName)
	assert.NoError(t, stored.CheckInvariants())
	assert.Equal(t, 1, f.events.count(progression.EventStudentRegistered))
}

func TestCreateStudent_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "kid-1")

	_, err := f.create.Handle(f.ctx, CreateStudentCommand{StudentID: "kid-1", DisplayName: "Again"})
	assert.ErrorIs(t, err, progression.ErrStudentExists)
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Equal(t, "kid-1", f.student(t, "kid-1").DisplayName)
	assert.Equal(t, 1, f.events.count(progression.EventStudentRegistered))
}

func TestCreateStudentCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CreateStudentCommand
		wantErr bool
	}{
		{"valid", CreateStudentCommand{StudentID: "kid-1", DisplayName: "Ada"}, false},
		{"empty name is allowed", CreateStudentCommand{StudentID: "kid-1"}, false},
		{"blank id", CreateStudentCommand{StudentID: "   "}, true},
		{"name too long", CreateStudentCommand{StudentID: "kid-1", DisplayName: strings.Repeat("a", MaxDisplayNameLength+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				assert.True(t, shared.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
