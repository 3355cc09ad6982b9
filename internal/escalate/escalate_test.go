package escalate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string // expected question, "" means no escalation
	}{
		{
			name: "blocked with trailing unrelated text",
			text: "BLOCKED: missing API credentials\n\nAnyway, here is what I did so far...",
			want: "BLOCKED: missing API credentials",
		},
		{
			name: "multi line question bounded by blank line",
			text: "Some preamble.\nQUESTION FOR HUMAN: which database should I target?\nPostgres would be simplest.\n\nIgnored tail.",
			want: "QUESTION FOR HUMAN: which database should I target?\nPostgres would be simplest.",
		},
		{
			name: "case insensitive marker",
			text: "stuck: cannot reproduce the failure locally",
			want: "stuck: cannot reproduce the failure locally",
		},
		{
			name: "marker must start the line",
			text: "The agent was not BLOCKED: everything went fine.",
			want: "",
		},
		{
			name: "no marker",
			text: "All good, implementation complete.",
			want: "",
		},
		{
			name: "escalate marker",
			text: "ESCALATE: the task contradicts the existing architecture",
			want: "ESCALATE: the task contradicts the existing architecture",
		},
		{
			name: "need clarification",
			text: "NEED CLARIFICATION: should deletes be soft or hard?",
			want: "NEED CLARIFICATION: should deletes be soft or hard?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.text)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Question)
		})
	}
}

func TestDetect_Idempotent(t *testing.T) {
	text := "BLOCKED: which auth provider?\nIt matters for the session model.\n\nrest"

	first := Detect(text)
	second := Detect(text)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Question, second.Question)
}

func TestFileAnswer(t *testing.T) {
	dir := t.TempDir()

	e := &Escalation{Role: "implementer", Question: "BLOCKED: need the API key name"}
	path := filepath.Join(dir, "escalation-1.md")
	require.NoError(t, os.WriteFile(path, []byte(e.Artifact()), 0644))

	// Heading present but nothing written yet.
	_, ok := FileAnswer(path)
	assert.False(t, ok)

	// Human edits the file below the heading.
	edited := e.Artifact() + "\nUse QUINTET_API_KEY from the env.\n"
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	answer, ok := FileAnswer(path)
	require.True(t, ok)
	assert.Equal(t, "Use QUINTET_API_KEY from the env.", answer)
}

func TestReadArtifact_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	e := &Escalation{
		Role:      "planner",
		Iteration: 2,
		Question:  "QUESTION FOR HUMAN: monolith or services?\nThe task mentions both.",
	}
	path := filepath.Join(dir, "iter-02-planner.md")
	require.NoError(t, os.WriteFile(path, []byte(e.Artifact()), 0644))

	// Unanswered file parses with an empty resolution.
	got, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, e.Role, got.Role)
	assert.Equal(t, 2, got.Iteration)
	assert.Equal(t, e.Question, got.Question)
	assert.Empty(t, got.Resolution)

	// An answer written later comes back as the resolution.
	require.NoError(t, os.WriteFile(path, []byte(e.Artifact()+"\nStart with the monolith.\n"), 0644))
	got, err = ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "Start with the monolith.", got.Resolution)
}

func TestReadArtifact_NotAnEscalationFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\n\njust notes\n"), 0644))

	_, err := ReadArtifact(path)
	assert.Error(t, err)
}

func TestSection(t *testing.T) {
	e := &Escalation{
		Role:       "implementer",
		Iteration:  3,
		Question:   "BLOCKED: need the API key name",
		Resolution: "Use QUINTET_API_KEY from the env.",
	}

	section := e.Section()
	assert.Contains(t, section, "## Human Answer (iteration 3, implementer)")
	assert.Contains(t, section, "BLOCKED: need the API key name")
	assert.Contains(t, section, "Use QUINTET_API_KEY from the env.")
}

func TestSentinelResolver(t *testing.T) {
	// No artifact: sentinel.
	got, err := SentinelResolver{}.Resolve(&Escalation{Question: "STUCK: ???"})
	require.NoError(t, err)
	assert.Equal(t, NoResponse, got)

	// Edited artifact wins over the sentinel.
	dir := t.TempDir()
	path := filepath.Join(dir, "esc.md")
	e := &Escalation{Role: "tester", Question: "BLOCKED: no test fixtures", ArtifactPath: path}
	require.NoError(t, os.WriteFile(path, []byte(e.Artifact()+"\nfixtures live under testdata/\n"), 0644))

	got, err = SentinelResolver{}.Resolve(e)
	require.NoError(t, err)
	assert.Equal(t, "fixtures live under testdata/", got)
}
