package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitleShortMessagePassesThrough(t *testing.T) {
	assert.Equal(t, "관세법 문의", DeriveTitle("관세법 문의"))
}

func TestDeriveTitleTruncatesOnRuneBoundary(t *testing.T) {
	message := strings.Repeat("가", 80)

	title := DeriveTitle(message)

	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, strings.Repeat("가", MaxTitleRunes)+"...", title)
}

func TestDeriveTitleExactLimitNotTruncated(t *testing.T) {
	message := strings.Repeat("a", MaxTitleRunes)

	assert.Equal(t, message, DeriveTitle(message))
}

func TestNewConversationDefaults(t *testing.T) {
	conv := NewConversation("conv-1", 42, "딸기 수입 규제가 궁금합니다")

	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, int64(42), conv.UserID)
	assert.Equal(t, "딸기 수입 규제가 궁금합니다", conv.Title)
	assert.True(t, conv.Active)
	assert.Zero(t, conv.MessageCount)
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)
}

func TestProgressStepTerminal(t *testing.T) {
	assert.True(t, StepCompleted.Terminal())
	assert.True(t, StepFailed.Terminal())

	for _, step := range []ProgressStep{
		StepReceived, StepRouting, StepRetrieving,
		StepGenerating, StepMerging, StepPersisting, StepHeartbeat,
	} {
		assert.False(t, step.Terminal(), string(step))
	}
}

func TestNewProgressEventStampsTimestamp(t *testing.T) {
	ev := NewProgressEvent("conv-1", StepRouting, "질문을 분석하고 있습니다", "")

	assert.Equal(t, "conv-1", ev.ConversationID)
	assert.Equal(t, StepRouting, ev.Step)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, "UTC", ev.Timestamp.Location().String())
}
