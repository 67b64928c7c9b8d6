package question_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/mockinterview/internal/question"
)

func TestNewBank(t *testing.T) {
	b, err := question.NewBank([]string{" Q1 ", "Q2", "", "Q1", "Q3"})
	require.NoError(t, err)

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, b.Questions())

	_, err = question.NewBank([]string{"  "})
	require.Error(t, err)
}

func TestBank_Remaining(t *testing.T) {
	b := question.MustNewBank([]string{"Q1", "Q2", "Q3"})
	asked := map[string]bool{"Q2": true}

	assert.Equal(t, []string{"Q1", "Q3"}, b.Remaining(func(q string) bool { return asked[q] }))
	assert.Empty(t, b.Remaining(func(string) bool { return true }))
}

func TestBank_QuestionsIsACopy(t *testing.T) {
	b := question.MustNewBank([]string{"Q1"})
	qs := b.Questions()
	qs[0] = "changed"

	assert.Equal(t, []string{"Q1"}, b.Questions())
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(p, []byte("questions:\n  - Tell me about yourself.\n  - How do you handle feedback?\n"), 0o600))

	b, err := question.LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tell me about yourself.", "How do you handle feedback?"}, b.Questions())

	_, err = question.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	b, err := question.NewBank(question.Default)
	require.NoError(t, err)
	assert.Equal(t, 10, b.Len())
}
