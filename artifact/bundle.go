package artifact

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"
)

// Keys under which a tool result's data carries a bundle.
const (
	KeyGeometryPath    = "geometry_path"
	KeyImagePath       = "image_path"
	KeyReadyMarkerPath = "ready_marker_path"
	KeyStatusCode      = "status_code"
)

// Bundle locates the files the CAD process produces for one view.
type Bundle struct {
	GeometryPath    string
	ImagePath       string
	ReadyMarkerPath string
	StatusCode      int
}

// BundleFromData resolves a bundle from tool result data. All three paths
// are required.
func BundleFromData(data map[string]any) (Bundle, error) {
	b := Bundle{
		GeometryPath:    stringField(data, KeyGeometryPath),
		ImagePath:       stringField(data, KeyImagePath),
		ReadyMarkerPath: stringField(data, KeyReadyMarkerPath),
	}
	switch n := data[KeyStatusCode].(type) {
	case int:
		b.StatusCode = n
	case int64:
		b.StatusCode = int(n)
	case float64:
		b.StatusCode = int(n)
	}

	var missing []string
	if b.GeometryPath == "" {
		missing = append(missing, KeyGeometryPath)
	}
	if b.ImagePath == "" {
		missing = append(missing, KeyImagePath)
	}
	if b.ReadyMarkerPath == "" {
		missing = append(missing, KeyReadyMarkerPath)
	}
	if len(missing) > 0 {
		return Bundle{}, fmt.Errorf("artifact: result data is missing %v", missing)
	}
	return b, nil
}

// Data renders the bundle as tool result data.
func (b Bundle) Data() map[string]any {
	return map[string]any{
		KeyGeometryPath:    b.GeometryPath,
		KeyImagePath:       b.ImagePath,
		KeyReadyMarkerPath: b.ReadyMarkerPath,
		KeyStatusCode:      b.StatusCode,
	}
}

// Artifacts are the consumed contents of a bundle.
type Artifacts struct {
	Geometry  []byte
	ImageMIME string
	ImageB64  string
}

// Load waits for the bundle's marker, consumes the geometry file and encodes
// the preview image for inline transmission.
func (x *Exchange) Load(ctx context.Context, b Bundle, timeout time.Duration) (*Artifacts, error) {
	geometry, err := x.ReadWhenReady(ctx, b.GeometryPath, b.ReadyMarkerPath, timeout)
	if err != nil {
		return nil, err
	}
	img, err := os.ReadFile(b.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("artifact: read image: %w", err)
	}
	return &Artifacts{
		Geometry:  geometry,
		ImageMIME: imageMIME(b.ImagePath),
		ImageB64:  base64.StdEncoding.EncodeToString(img),
	}, nil
}

func imageMIME(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "image/png"
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
