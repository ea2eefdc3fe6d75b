package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampProgress(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 42: 42, 100: 100, 150: 100}
	for in, want := range cases {
		assert.Equal(t, want, ClampProgress(in), "input %d", in)
	}
}

func TestNextProgress(t *testing.T) {
	reported := 150
	assert.Equal(t, 100, NextProgress(10, &reported))

	negative := -5
	assert.Equal(t, 0, NextProgress(60, &negative))

	zero := 0
	assert.Equal(t, 0, NextProgress(60, &zero), "a reported zero is still a value")

	assert.Equal(t, 20, NextProgress(0, nil))
	assert.Equal(t, 100, NextProgress(90, nil))
}

func TestConversationApply(t *testing.T) {
	now := time.Now()
	c := NewConversation("s1", now)

	msgs := []Message{{Role: RoleUser, Content: "hi", Timestamp: now}}
	step := 1
	progress := 130
	verseID := int64(7)
	later := now.Add(time.Second)

	c.Apply(ConversationPatch{
		Messages:           &msgs,
		CurrentStep:        &step,
		ProgressPercentage: &progress,
		SelectedVerseID:    &verseID,
	}, later)

	require.Len(t, c.Messages, 1)
	assert.Equal(t, 1, c.CurrentStep)
	assert.Equal(t, 100, c.ProgressPercentage)
	require.True(t, c.HasVerse())
	assert.Equal(t, int64(7), *c.SelectedVerseID)
	assert.Equal(t, later, c.UpdatedAt)

	msgs[0].Content = "mutated"
	assert.Equal(t, "hi", c.Messages[0].Content, "patch slice must be copied")
}

func TestConversationCloneIsDeep(t *testing.T) {
	id := int64(3)
	c := &Conversation{
		SessionID:       "s1",
		Messages:        []Message{{Role: RoleUser, Content: "a"}},
		SelectedVerseID: &id,
	}
	cp := c.Clone()
	cp.Messages[0].Content = "b"
	*cp.SelectedVerseID = 9

	assert.Equal(t, "a", c.Messages[0].Content)
	assert.Equal(t, int64(3), *c.SelectedVerseID)
}
