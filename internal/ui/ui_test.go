package ui

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/delivery"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/store"
)

func console(input string) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return NewConsole(strings.NewReader(input), &out), &out
}

func TestReadInt(t *testing.T) {
	c, _ := console("3\nx\n9\n")
	v, err := c.ReadInt("n: ", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = c.ReadInt("n: ", 1, 5)
	assert.ErrorContains(t, err, "invalid number")
	_, err = c.ReadInt("n: ", 1, 5)
	assert.ErrorContains(t, err, "between 1 and 5")
	assert.False(t, c.Closed())

	_, err = c.ReadInt("n: ", 1, 5)
	assert.Error(t, err)
	assert.True(t, c.Closed())
}

func TestReadDate(t *testing.T) {
	c, _ := console("2024-03-01\n\n01/03/2024\n")
	d, err := c.ReadDate("date: ")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", d)

	d, err = c.ReadDate("date: ")
	require.NoError(t, err)
	assert.Empty(t, d)

	_, err = c.ReadDate("date: ")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestSelectFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.tif", "b.TIF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	c, out := console("2\n")
	path, err := c.SelectFile(dir, "scenes", ".tif")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.TIF"), path)
	assert.NotContains(t, out.String(), "notes.txt")

	_, err = c.SelectFile(dir, "manifests", ".csv")
	assert.ErrorContains(t, err, "no manifests found")
}

func TestMenuAnalyze(t *testing.T) {
	root := t.TempDir()
	folders := DefaultFolders(root)
	require.NoError(t, os.MkdirAll(folders.Scenes, 0755))
	require.NoError(t, os.MkdirAll(folders.Previews, 0755))
	for _, name := range []string{"pre.tif", "post.tif"} {
		require.NoError(t, os.WriteFile(filepath.Join(folders.Scenes, name), nil, 0644))
		require.NoError(t, os.WriteFile(filepath.Join(folders.Previews, strings.TrimSuffix(name, ".tif")+".png"), nil, 0644))
	}

	var got delivery.Job
	actions := Actions{
		Analyze: func(_ context.Context, job delivery.Job) (*delivery.Summary, error) {
			got = job
			return &delivery.Summary{Lost: 4, Stats: report.AreaStats{"Lost Water": {AreaHa: 0.04}}}, nil
		},
	}
	// scenes are listed post.tif, pre.tif; variants are sorted, "water" last
	c, out := console("1\n2\n1\n4\nrotterdam\n2023-01-01\n\n7\n2\n")
	NewMenu(c, folders, actions).Show(context.Background())

	assert.Equal(t, "rotterdam", got.Name)
	assert.Equal(t, "water", got.Variant)
	assert.Equal(t, filepath.Join(folders.Scenes, "pre.tif"), got.PrePath)
	assert.Equal(t, filepath.Join(folders.Scenes, "post.tif"), got.PostPath)
	assert.Equal(t, "2023-01-01", got.PreDate)
	assert.Empty(t, got.PostDate)
	assert.Equal(t, int64(7), got.PortID)
	assert.Equal(t, filepath.Join(folders.Previews, "pre.png"), got.PrePreview)
	assert.Contains(t, out.String(), "Lost Water: 0.04 ha")
	assert.Contains(t, out.String(), "Exiting...")
}

func TestMenuOptionsAndErrors(t *testing.T) {
	actions := Actions{
		Evaluate: func(pred, truth string) (report.Evaluation, error) {
			return report.Evaluation{}, errors.New("bad mask")
		},
		ListPorts: func(_ context.Context, region string) ([]store.Port, error) {
			return []store.Port{{ID: 3, Name: "Antwerp", Region: region}}, nil
		},
	}
	c, out := console("7\n1\np.tif\nt.tif\n2\nEU\n")
	NewMenu(c, DefaultFolders(t.TempDir()), actions).Show(context.Background())

	s := out.String()
	assert.Contains(t, s, "1. Evaluate a predicted mask")
	assert.Contains(t, s, "3. Exit the application")
	assert.Contains(t, s, "Invalid choice")
	assert.Contains(t, s, "Error evaluating mask: bad mask")
	assert.Contains(t, s, "3 Antwerp")
	assert.NotContains(t, s, "Run a batch manifest")
}
