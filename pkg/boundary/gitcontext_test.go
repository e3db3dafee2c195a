package boundary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaptureGitContextOnNonRepoIsEmptyNotError(t *testing.T) {
	ctx := CaptureGitContext(t.TempDir())
	require.Empty(t, ctx.Commits)
	require.Empty(t, ctx.FilesChanged)
}

func TestSplitNonEmptyDropsBlankLines(t *testing.T) {
	out := splitNonEmpty("abc123 first commit\n\n  \ndef456 second commit\n")
	require.Equal(t, []string{"abc123 first commit", "def456 second commit"}, out)
}

func TestMergeFileListsDedupsAcrossDiffStatAndPorcelain(t *testing.T) {
	diffStat := " main.go | 12 +++++-------\n"
	porcelain := " M main.go\n?? newfile.go\n"

	out := mergeFileLists(diffStat, porcelain)
	require.Equal(t, []string{"main.go", "newfile.go"}, out)
}
