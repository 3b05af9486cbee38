package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ports "budgetflow/internal/sheets"

	gdrive "google.golang.org/api/drive/v3"
)

const (
	mimeFolder      = "application/vnd.google-apps.folder"
	mimeSpreadsheet = "application/vnd.google-apps.spreadsheet"

	previousQuartersFolder = "previous_quarters"
)

// ProjectName is the name of the project folder.
func (c *Client) ProjectName(ctx context.Context) (string, error) {
	if c.opts.ProjectFolderID == "" {
		return "", errors.New("project folder not configured")
	}
	f, err := c.drive.Files.Get(c.opts.ProjectFolderID).Fields("id, name").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get project folder: %w", err)
	}
	return f.Name, nil
}

// ListSources lists the spreadsheets of a status folder under the project folder.
func (c *Client) ListSources(ctx context.Context, folder ports.Folder) ([]ports.SourceRef, error) {
	if c.opts.ProjectFolderID == "" {
		return nil, errors.New("project folder not configured")
	}
	sub, ok, err := c.childFolder(ctx, c.opts.ProjectFolderID, string(folder))
	if err != nil || !ok {
		return nil, err
	}
	files, err := c.listFiles(ctx, spreadsheetsIn(sub))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	out := make([]ports.SourceRef, 0, len(files))
	for _, f := range files {
		out = append(out, ports.SourceRef{ID: f.Id, Name: f.Name, Folder: folder})
	}
	return out, nil
}

// ListReconciliations finds reconciliation spreadsheets in the reconciliation
// folder and in its previous_quarters subfolder.
func (c *Client) ListReconciliations(ctx context.Context) ([]ports.SourceRef, error) {
	root := c.opts.ReconciliationFolderID
	if root == "" {
		return nil, errors.New("reconciliation folder not configured")
	}
	folders := []string{root}
	if prev, ok, err := c.childFolder(ctx, root, previousQuartersFolder); err != nil {
		return nil, err
	} else if ok {
		folders = append(folders, prev)
	}
	var out []ports.SourceRef
	for _, id := range folders {
		q := spreadsheetsIn(id) + fmt.Sprintf(" and name contains '%s'", escapeQuery(ports.ReconciliationPattern))
		files, err := c.listFiles(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("list reconciliations: %w", err)
		}
		for _, f := range files {
			out = append(out, ports.SourceRef{ID: f.Id, Name: f.Name})
		}
	}
	return out, nil
}

func (c *Client) childFolder(ctx context.Context, parent, name string) (string, bool, error) {
	q := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(parent), escapeQuery(name), mimeFolder)
	files, err := c.listFiles(ctx, q)
	if err != nil {
		return "", false, fmt.Errorf("find folder %s: %w", name, err)
	}
	if len(files) == 0 {
		return "", false, nil
	}
	return files[0].Id, true, nil
}

func (c *Client) listFiles(ctx context.Context, q string) ([]*gdrive.File, error) {
	var out []*gdrive.File
	call := c.drive.Files.List().Q(q).
		Fields("nextPageToken, files(id, name, mimeType)").
		OrderBy("name").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)
	err := call.Pages(ctx, func(page *gdrive.FileList) error {
		out = append(out, page.Files...)
		return nil
	})
	return out, err
}

func spreadsheetsIn(folderID string) string {
	return fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", escapeQuery(folderID), mimeSpreadsheet)
}

// escapeQuery escapes a literal for a Drive query string.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
