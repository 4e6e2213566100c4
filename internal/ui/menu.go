package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/delivery"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/pipeline"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/store"
)

// Actions are the operations reachable from the menu. Nil actions are
// hidden.
type Actions struct {
	Analyze        func(ctx context.Context, job delivery.Job) (*delivery.Summary, error)
	Batch          func(ctx context.Context, manifestPath string) ([]delivery.Summary, error)
	Evaluate       func(predPath, truthPath string) (report.Evaluation, error)
	ListPorts      func(ctx context.Context, region string) ([]store.Port, error)
	ListChangeMaps func(ctx context.Context, portID int64) ([]store.ChangeMap, error)
}

// Folders under the data root the menu browses.
type Folders struct {
	Scenes    string
	Previews  string
	Manifests string
	Results   string
}

// DefaultFolders lays the folders out under root.
func DefaultFolders(root string) Folders {
	return Folders{
		Scenes:    filepath.Join(root, "scenes"),
		Previews:  filepath.Join(root, "previews"),
		Manifests: filepath.Join(root, "manifests"),
		Results:   filepath.Join(root, "result"),
	}
}

type menuOption struct {
	title   string
	handler func(ctx context.Context)
}

type Menu struct {
	console *Console
	folders Folders
	actions Actions
}

func NewMenu(console *Console, folders Folders, actions Actions) *Menu {
	return &Menu{console: console, folders: folders, actions: actions}
}

func (m *Menu) options() []menuOption {
	var opts []menuOption
	if m.actions.Analyze != nil {
		opts = append(opts, menuOption{"Analyze change between two scenes", m.analyze})
	}
	if m.actions.Batch != nil {
		opts = append(opts, menuOption{"Run a batch manifest", m.batch})
	}
	if m.actions.Evaluate != nil {
		opts = append(opts, menuOption{"Evaluate a predicted mask against ground truth", m.evaluate})
	}
	if m.actions.ListPorts != nil {
		opts = append(opts, menuOption{"View the list of ports of a region", m.listPorts})
	}
	if m.actions.ListChangeMaps != nil {
		opts = append(opts, menuOption{"View the change maps of a port", m.listChangeMaps})
	}
	return opts
}

// Show displays the main menu until the user exits, the input closes or ctx
// is cancelled.
func (m *Menu) Show(ctx context.Context) {
	c := m.console
	menuOptions := m.options()

	for ctx.Err() == nil {
		fmt.Fprintf(c.out, "%s===================%s\n", ColorBlue, ColorReset)
		for i, opt := range menuOptions {
			fmt.Fprintf(c.out, "%s%d. %s%s\n", ColorBlue, i+1, opt.title, ColorReset)
		}
		fmt.Fprintf(c.out, "%s%d. Exit the application%s\n", ColorBlue, len(menuOptions)+1, ColorReset)

		choice, err := c.ReadInt("Please enter your choice: ", 1, len(menuOptions)+1)
		if err != nil {
			if c.Closed() {
				fmt.Fprintln(c.out, "\nExiting...")
				return
			}
			c.PrintError(fmt.Sprintf("Invalid choice. %s", err.Error()))
			continue
		}
		if choice == len(menuOptions)+1 {
			fmt.Fprintln(c.out, "Exiting...")
			return
		}

		menuOptions[choice-1].handler(ctx)
	}
}

func (m *Menu) analyze(ctx context.Context) {
	c := m.console
	c.PrintWarning(fmt.Sprintf("- Scenes are 5-band GeoTIFFs (Green, Red, NIR, SWIR1, SCL) in %s.\n- Optional RGB previews with the same file names as PNG live in %s.", m.folders.Scenes, m.folders.Previews))

	pre, err := c.SelectFile(m.folders.Scenes, "scenes", ".tif", ".tiff")
	if err != nil {
		c.PrintError(err.Error())
		return
	}
	post, err := c.SelectFile(m.folders.Scenes, "scenes", ".tif", ".tiff")
	if err != nil {
		c.PrintError(err.Error())
		return
	}
	variant, err := c.Choose("variants", pipeline.VariantNames())
	if err != nil {
		c.PrintError(err.Error())
		return
	}

	job := delivery.Job{Variant: variant, PrePath: pre, PostPath: post}
	job.Name = c.ReadString("Enter a name for this analysis: ")
	if job.Name == "" {
		c.PrintError("name cannot be empty")
		return
	}
	if job.PreDate, err = c.ReadDate("Enter the pre date (YYYY-MM-DD, optional): "); err != nil {
		c.PrintError(err.Error())
		return
	}
	if job.PostDate, err = c.ReadDate("Enter the post date (YYYY-MM-DD, optional): "); err != nil {
		c.PrintError(err.Error())
		return
	}
	if id := c.ReadString("Enter the port id (optional): "); id != "" {
		if job.PortID, err = strconv.ParseInt(id, 10, 64); err != nil {
			c.PrintError(fmt.Sprintf("invalid port id: %s", id))
			return
		}
	}
	job.PrePreview, job.PostPreview = m.previewFor(pre), m.previewFor(post)
	if job.PrePreview == "" || job.PostPreview == "" {
		job.PrePreview, job.PostPreview = "", ""
	}

	s, err := m.actions.Analyze(ctx, job)
	if err != nil {
		c.PrintError(fmt.Sprintf("Error analyzing scenes: %s", err.Error()))
		return
	}
	c.PrintSuccess(fmt.Sprintf("Successful analysis!\nPersistent: %d  New: %d  Lost: %d  Unchanged: %d\nResults located at: %s",
		s.Persistent, s.New, s.Lost, s.Unchanged, filepath.Join(m.folders.Results, job.Name)))
	for _, row := range s.Stats.Rows() {
		c.PrintItem(fmt.Sprintf("%s: %.2f ha", row.Label, row.AreaHa))
	}
}

// previewFor returns the preview matching a scene file name, if present.
func (m *Menu) previewFor(scene string) string {
	base := strings.TrimSuffix(filepath.Base(scene), filepath.Ext(scene))
	path := filepath.Join(m.folders.Previews, base+".png")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (m *Menu) batch(ctx context.Context) {
	c := m.console
	c.PrintWarning(fmt.Sprintf("The manifest should be a '.csv' file in %s with the columns name, variant, pre_path, post_path and optionally pre_date, post_date, port_id, pre_preview, post_preview.", m.folders.Manifests))

	manifest, err := c.SelectFile(m.folders.Manifests, "manifests", ".csv")
	if err != nil {
		c.PrintError(err.Error())
		return
	}
	summaries, err := m.actions.Batch(ctx, manifest)
	if err != nil {
		c.PrintError(fmt.Sprintf("Error running batch: %s", err.Error()))
		return
	}

	failed := 0
	for _, s := range summaries {
		if s.Error != "" {
			failed++
			c.PrintItem(fmt.Sprintf("%s: %s", s.Name, s.Error))
		}
	}
	c.PrintSuccess(fmt.Sprintf("Batch finished: %d succeeded, %d failed", len(summaries)-failed, failed))
}

func (m *Menu) evaluate(ctx context.Context) {
	c := m.console
	pred := c.ReadString("Enter the predicted mask path: ")
	truth := c.ReadString("Enter the ground truth mask path: ")
	if pred == "" || truth == "" {
		c.PrintError("mask paths cannot be empty")
		return
	}
	e, err := m.actions.Evaluate(pred, truth)
	if err != nil {
		c.PrintError(fmt.Sprintf("Error evaluating mask: %s", err.Error()))
		return
	}
	c.PrintSuccess(fmt.Sprintf("TP: %d  FP: %d  TN: %d  FN: %d\nAccuracy: %.2f%%\nPrecision: %.2f%%\nRecall: %.2f%%\nF1: %.2f%%\nIoU: %.2f%%",
		e.TP, e.FP, e.TN, e.FN, e.Accuracy, e.Precision, e.Recall, e.F1, e.IoU))
}

func (m *Menu) listPorts(ctx context.Context) {
	c := m.console
	region := c.ReadString("Enter the region: ")
	ports, err := m.actions.ListPorts(ctx, region)
	if err != nil {
		c.PrintError(err.Error())
		return
	}
	if len(ports) == 0 {
		c.PrintWarning(fmt.Sprintf("No ports registered for region %q.", region))
		return
	}
	fmt.Fprintf(c.out, "\n%sAvailable ports:%s\n", ColorGreen, ColorReset)
	for _, p := range ports {
		c.PrintItem(fmt.Sprintf("%d %s (%.4f, %.4f)", p.ID, p.Name, p.Latitude, p.Longitude))
	}
}

func (m *Menu) listChangeMaps(ctx context.Context) {
	c := m.console
	id, err := strconv.ParseInt(c.ReadString("Enter the port id: "), 10, 64)
	if err != nil {
		c.PrintError("invalid port id")
		return
	}
	maps, err := m.actions.ListChangeMaps(ctx, id)
	if err != nil {
		c.PrintError(err.Error())
		return
	}
	if len(maps) == 0 {
		c.PrintWarning("No change maps stored for this port.")
		return
	}
	fmt.Fprintf(c.out, "\n%sChange maps:%s\n", ColorGreen, ColorReset)
	for _, cm := range maps {
		c.PrintItem(fmt.Sprintf("%s %s %s -> %s", cm.ID, cm.Variant, cm.PreDate.Format("2006-01-02"), cm.PostDate.Format("2006-01-02")))
	}
}
