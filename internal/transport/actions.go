package transport

import "context"

// Meta is the owner/group/mode triple carried with every file-like artifact
// (spec.md §4.3: file/partial/additional-get-meta / set-meta).
type Meta struct {
	Owner string `json:"owner"`
	Group string `json:"group"`
	Mode  uint32 `json:"mode"`
}

// EditRule is one partial edit rule: a regex pattern, its replacement
// value, and an optional section-scoping regex (spec.md §4.4).
type EditRule struct {
	Pattern string `json:"pattern"`
	Value   string `json:"value"`
	Section *string `json:"section"`
}

// DirEntry describes one file or subdirectory inside a directory-get-content
// / directory-set-content payload (spec.md §4.3).
type DirEntry struct {
	Meta    Meta   `json:"meta"`
	Content string `json:"content,omitempty"` // base64, files only
}

// DirContent is the full recursive structure of a managed directory.
type DirContent struct {
	Dirs  map[string]Meta     `json:"dirs"`  // rel-id -> meta
	Files map[string]DirEntry `json:"files"` // rel-id -> meta+content
}

// List returns id -> server-version for file/directory/partial/additional
// kinds, or id -> present for packages. Both are modeled as map[string]int64
// (present is encoded as a non-zero version for packages, by convention 1).
func (c *Client) List(ctx context.Context, kind string) (map[string]int64, error) {
	var out map[string]int64
	if err := c.Call(ctx, kind+"-list", nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Exists reports whether the server still lists id under kind.
func (c *Client) Exists(ctx context.Context, kind, id string) (bool, error) {
	var out bool
	if err := c.Call(ctx, kind+"-exists", map[string]any{"id": id}, &out); err != nil {
		return false, err
	}

	return out, nil
}

// Create registers a new object id of the given kind on the server. prefix
// is only meaningful for additionals (the target file's comment syntax) and
// is ignored otherwise.
func (c *Client) Create(ctx context.Context, kind, id, prefix string) error {
	params := map[string]any{"id": id}
	if kind == "additional" {
		params["prefix"] = prefix
	}

	return c.Call(ctx, kind+"-create", params, nil)
}

// Delete unregisters an object id of the given kind on the server.
func (c *Client) Delete(ctx context.Context, kind, id string) error {
	return c.Call(ctx, kind+"-delete", map[string]any{"id": id}, nil)
}

// GetMeta fetches owner/group/mode for a file/partial/additional id.
func (c *Client) GetMeta(ctx context.Context, kind, id string) (Meta, error) {
	var out Meta
	if err := c.Call(ctx, kind+"-get-meta", map[string]any{"id": id}, &out); err != nil {
		return Meta{}, err
	}

	return out, nil
}

// SetMeta pushes owner/group/mode for a file/partial/additional id.
func (c *Client) SetMeta(ctx context.Context, kind, id string, meta Meta) error {
	return c.Call(ctx, kind+"-set-meta", map[string]any{
		"id": id, "owner": meta.Owner, "group": meta.Group, "mode": meta.Mode,
	}, nil)
}

// GetFileContent fetches base64-encoded file bytes.
func (c *Client) GetFileContent(ctx context.Context, id string) (string, error) {
	var out string
	if err := c.Call(ctx, "file-get-content", map[string]any{"id": id}, &out); err != nil {
		return "", err
	}

	return out, nil
}

// SetFileContent pushes base64-encoded file bytes tagged with the local
// version the upload is based on.
func (c *Client) SetFileContent(ctx context.Context, id, base64Content string, version int64) error {
	return c.Call(ctx, "file-set-content", map[string]any{
		"id": id, "content": base64Content, "version": version,
	}, nil)
}

// GetDirContent fetches the recursive structure of a managed directory.
func (c *Client) GetDirContent(ctx context.Context, id string) (*DirContent, error) {
	var out DirContent
	if err := c.Call(ctx, "directory-get-content", map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// SetDirContent pushes the recursive structure of a managed directory as one
// atomic payload (spec.md §4.4: "Send atomically as one content payload").
func (c *Client) SetDirContent(ctx context.Context, id string, content *DirContent, version int64) error {
	return c.Call(ctx, "directory-set-content", map[string]any{
		"id": id, "dirs": content.Dirs, "files": content.Files, "version": version,
	}, nil)
}

// GetPartialContent fetches the ordered edit rules for a partial.
func (c *Client) GetPartialContent(ctx context.Context, id string) ([]EditRule, error) {
	var out []EditRule
	if err := c.Call(ctx, "partial-get-content", map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// SetPartialContent pushes updated edit rules (harvested values) back to the
// server.
func (c *Client) SetPartialContent(ctx context.Context, id string, edits []EditRule, version int64) ([]EditRule, error) {
	var out []EditRule
	if err := c.Call(ctx, "partial-set-content", map[string]any{
		"id": id, "edits": edits, "version": version,
	}, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// GetAdditionalPrefix fetches the target file's line-comment syntax.
func (c *Client) GetAdditionalPrefix(ctx context.Context, id string) (string, error) {
	var out string
	if err := c.Call(ctx, "additional-get-prefix", map[string]any{"id": id}, &out); err != nil {
		return "", err
	}

	return out, nil
}

// GetAdditionalContent fetches the managed block's content lines.
func (c *Client) GetAdditionalContent(ctx context.Context, id string) ([]string, error) {
	var out []string
	if err := c.Call(ctx, "additional-get-content", map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// SetAdditionalContent pushes harvested block content lines back to the
// server.
func (c *Client) SetAdditionalContent(ctx context.Context, id string, lines []string, version int64) ([]string, error) {
	var out []string
	if err := c.Call(ctx, "additional-set-content", map[string]any{
		"id": id, "lines": lines, "version": version,
	}, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// PackageAdd requests the server register a package name as managed.
func (c *Client) PackageAdd(ctx context.Context, id string) error {
	return c.Call(ctx, "package-add", map[string]any{"id": id}, nil)
}

// PackageRemove requests the server unregister a package name.
func (c *Client) PackageRemove(ctx context.Context, id string) error {
	return c.Call(ctx, "package-remove", map[string]any{"id": id}, nil)
}
