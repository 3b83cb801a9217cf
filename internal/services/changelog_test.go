package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-manager-go/internal/core"
)

func TestFormatChangelog(t *testing.T) {
	task := core.NewTask("auth", "login", "Login form")
	task.Changes = []string{"Add login form", "Validate password"}

	out, err := FormatChangelog(task, ChangelogOptions{Category: "added", Version: "1.2.0", Date: "2024-05-01"})
	require.NoError(t, err)
	assert.Equal(t, "## [1.2.0] - 2024-05-01\n\n### Added\n\n- Add login form\n- Validate password\n", out)

	task.Changes = nil
	out, err = FormatChangelog(task, ChangelogOptions{Category: "Fixed"})
	require.NoError(t, err)
	assert.Equal(t, "### Fixed\n\n- No entries provided\n", out)

	_, err = FormatChangelog(task, ChangelogOptions{Category: "Improved"})
	assert.True(t, core.IsKind(err, core.KindSchemaViolation))
}

func TestFormatCommitMessage(t *testing.T) {
	task := core.NewTask("auth", "login", "Login form")
	task.Changes = []string{"Add login form"}

	out, err := FormatCommitMessage(task, "feat")
	require.NoError(t, err)
	assert.Equal(t, "feat(login): Login form\n\n- Add login form\n\nRefs: auth\n", out)

	task.Changes = nil
	out, err = FormatCommitMessage(task, "FIX")
	require.NoError(t, err)
	assert.Equal(t, "fix(login): Login form\n\nRefs: auth\n", out)

	_, err = FormatCommitMessage(task, "feature")
	assert.Error(t, err)
}
