package cad

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/artifact"
	"github.com/tidwall/gjson"
)

// Tool names.
const (
	ToolCommand                = "cad_command"
	ToolOpenFile               = "cad_open_file"
	ToolNewFile                = "cad_new_file"
	ToolActivateFile           = "cad_activate_file"
	ToolSaveFile               = "cad_save_file"
	ToolExportPDF              = "cad_export_pdf"
	ToolExport                 = "cad_export"
	ToolCreateStandardView     = "cad_create_standard_view"
	ToolCreateDimensioningView = "cad_create_view_for_dimensioning"
	ToolLinearDimension        = "cad_linear_dimension"
	ToolLinearOffsetDimension  = "cad_linear_offset_dimension"
	ToolRadialDimension        = "cad_radial_dimension"
	ToolArcLengthDimension     = "cad_arc_length_dimension"
	ToolHoleCalloutDimension   = "cad_hole_callout_dimension"
	ToolBuildAssembly          = "cad_build_assembly"
	ToolInsertComponent        = "cad_insert_component"
)

// Remote command names.
const (
	CmdFileOpen        = "FILEOPEN"
	CmdFileNew         = "FILENEW"
	CmdFileActivate    = "FILEACTIVATE"
	CmdFileSave        = "FILESAVE"
	CmdExportPDF       = "EXPPDF"
	CmdExport          = "EXPORT"
	CmdStdViewCreate   = "STDVUCRT"
	CmdStdViewDim      = "STDVUCRTDIM"
	CmdLinearDim       = "LINEARDIM"
	CmdLinearOffsetDim = "LINEAROFFSETDIM"
	CmdRadialDim       = "RADIALDIM"
	CmdArcLengthDim    = "ARCLENDIM"
	CmdHoleCalloutDim  = "HOLECALLOUTDIM"
	CmdAssemblyBuild   = "ASMBUILD"
	CmdInsertComponent = "INSERTCOMP"
)

// DimensionToolNames are the tools a dimensioning sub-agent needs.
var DimensionToolNames = []string{
	ToolLinearDimension,
	ToolLinearOffsetDimension,
	ToolRadialDimension,
	ToolArcLengthDimension,
	ToolHoleCalloutDimension,
}

// Artifact file names written by the dimensioning-view command.
const (
	GeometryFile = "view_geometry.json"
	ImageFile    = "view_preview.png"
	MarkerFile   = "view.done"
)

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func num(desc string) map[string]any { return map[string]any{"type": "number", "description": desc} }
func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}
func point(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "minItems": 2, "maxItems": 2, "description": desc}
}

var placement = point("Optional [x, y] position of the dimension text in view coordinates")

// Tools returns the full CAD tool set. artifactDir receives the files of the
// dimensioning-view command.
func Tools(c *Client, artifactDir string) []cadagent.Tool {
	tools := []cadagent.Tool{
		CommandTool(c),
		commandTool(c, ToolOpenFile, CmdFileOpen, "Open a part, drawing or assembly file.",
			map[string]any{"filePath": str("Path of the file to open")}, "filePath"),
		commandTool(c, ToolNewFile, CmdFileNew, "Create a new file.",
			map[string]any{
				"filePath": str("Path of the new file"),
				"type":     map[string]any{"type": "string", "enum": []string{"part", "drawing", "assembly"}},
			}, "filePath", "type"),
		commandTool(c, ToolActivateFile, CmdFileActivate, "Make an already open file the active one.",
			map[string]any{"filePath": str("Path of the open file")}, "filePath"),
		commandTool(c, ToolSaveFile, CmdFileSave, "Save the active file, optionally under a new path.",
			map[string]any{"filePath": str("Optional target path")}),
		commandTool(c, ToolExportPDF, CmdExportPDF, "Export the active drawing to PDF.",
			map[string]any{
				"path":    str("Target PDF path"),
				"pdfType": integer("PDF flavour understood by the CAD program, e.g. 2"),
			}, "path"),
		commandTool(c, ToolExport, CmdExport, "Export the active file to another format (STEP, IGES, DWG, STL...).",
			map[string]any{
				"path":   str("Target path; the extension selects the format"),
				"format": str("Optional explicit format name"),
			}, "path"),
		commandTool(c, ToolCreateStandardView, CmdStdViewCreate, "Create a standard projection view on the active drawing sheet.",
			map[string]any{
				"partPath": str("Part to project"),
				"viewType": map[string]any{"type": "string", "enum": []string{"front", "top", "right", "left", "bottom", "back", "iso"}},
				"position": point("[x, y] sheet position of the view"),
				"scale":    num("View scale"),
			}, "viewType"),
		DimensioningViewTool(c, artifactDir),
		commandTool(c, ToolLinearDimension, CmdLinearDim, "Add a linear length dimension to a line entity.",
			map[string]any{"id": integer("Entity id of the line"), "position": placement}, "id"),
		commandTool(c, ToolLinearOffsetDimension, CmdLinearOffsetDim, "Add a distance dimension from a feature to a datum line.",
			map[string]any{
				"id":       integer("Entity id of the feature (line, or circle/arc centre)"),
				"datumId":  integer("Entity id of the datum line"),
				"position": placement,
			}, "id", "datumId"),
		commandTool(c, ToolRadialDimension, CmdRadialDim, "Add a radius dimension to an arc or circle.",
			map[string]any{"id": integer("Entity id of the arc or circle"), "diameter": map[string]any{"type": "boolean"}, "position": placement}, "id"),
		commandTool(c, ToolArcLengthDimension, CmdArcLengthDim, "Add an arc-length dimension to an arc.",
			map[string]any{"id": integer("Entity id of the arc"), "position": placement}, "id"),
		commandTool(c, ToolHoleCalloutDimension, CmdHoleCalloutDim, "Add a hole callout (diameter, depth, thread) to a hole.",
			map[string]any{"id": integer("Entity id of the hole edge"), "position": placement}, "id"),
		commandTool(c, ToolBuildAssembly, CmdAssemblyBuild, "Build a multi-level assembly from a component tree.",
			map[string]any{
				"filePath": str("Path of the assembly to create"),
				"tree": map[string]any{
					"type":        "object",
					"description": "Component tree: {name, path, children: [...]}",
				},
			}, "filePath", "tree"),
		commandTool(c, ToolInsertComponent, CmdInsertComponent, "Insert a component into the active assembly.",
			map[string]any{
				"componentPath": str("Path of the component file"),
				"position":      map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "description": "[x, y, z] insertion point"},
			}, "componentPath"),
	}
	return tools
}

// CommandTool runs any remote command by name.
func CommandTool(c *Client) cadagent.Tool {
	return cadagent.ToolFunc{
		ToolSpec: cadagent.ToolSpec{
			Name:        ToolCommand,
			Description: "Execute a specific CAD remote command by name with JSON parameters.",
			Parameters: cadagent.ObjectSchema(map[string]any{
				"command": str("Name of the remote command, e.g. FILEOPEN"),
				"params":  map[string]any{"type": "object", "description": "Parameters of the command"},
			}, "command"),
		},
		Fn: func(ctx context.Context, args cadagent.Args) (any, error) {
			res, err := c.Run(ctx, args.String("command"), args["params"])
			if err != nil {
				return nil, err
			}
			return resultEnvelope(res), nil
		},
	}
}

func commandTool(c *Client, name, command, desc string, props map[string]any, required ...string) cadagent.Tool {
	return cadagent.ToolFunc{
		ToolSpec: cadagent.ToolSpec{
			Name:        name,
			Description: desc,
			Parameters:  cadagent.ObjectSchema(props, required...),
		},
		Fn: func(ctx context.Context, args cadagent.Args) (any, error) {
			for _, key := range required {
				if _, ok := args[key]; !ok {
					return nil, fmt.Errorf("%s: missing required argument %q", name, key)
				}
			}
			res, err := c.Run(ctx, command, map[string]any(args))
			if err != nil {
				return nil, err
			}
			return resultEnvelope(res), nil
		},
	}
}

// resultEnvelope turns a finished command into an envelope. Structured
// stdout is decoded into data["output"].
func resultEnvelope(res *Result) cadagent.Envelope {
	if res.ExitCode != 0 {
		msg := fmt.Sprintf("%s exited with code %d", res.Command, res.ExitCode)
		if res.Stderr != "" {
			msg += ": " + res.Stderr
		}
		return cadagent.Failure(msg)
	}
	return cadagent.Success(resultData(res))
}

func resultData(res *Result) map[string]any {
	data := res.Data()
	if out := gjson.Parse(res.Stdout); res.Stdout != "" && gjson.Valid(res.Stdout) && (out.IsObject() || out.IsArray()) {
		data["output"] = out.Value()
	}
	return data
}

// DimensioningViewTool creates a standard view and asks the CAD program to
// export the view's geometry and preview for dimensioning. Exit code 1 means
// the artifacts are being produced and a dimensioning pass should follow; it
// is reported as data.status_code, not as a failure.
func DimensioningViewTool(c *Client, artifactDir string) cadagent.Tool {
	return cadagent.ToolFunc{
		ToolSpec: cadagent.ToolSpec{
			Name: ToolCreateDimensioningView,
			Description: "Create a standard projection view and export its geometry and a preview image " +
				"so the view can be dimensioned automatically.",
			Parameters: cadagent.ObjectSchema(map[string]any{
				"partPath": str("Part to project"),
				"viewType": map[string]any{"type": "string", "enum": []string{"front", "top", "right", "left", "bottom", "back", "iso"}},
				"position": point("[x, y] sheet position of the view"),
				"scale":    num("View scale"),
			}, "viewType"),
		},
		Fn: func(ctx context.Context, args cadagent.Args) (any, error) {
			var view struct {
				ViewType string `json:"viewType"`
			}
			if err := args.Decode(&view); err != nil {
				return nil, fmt.Errorf("%s: %w", ToolCreateDimensioningView, err)
			}
			if view.ViewType == "" {
				return nil, fmt.Errorf("%s: missing required argument %q", ToolCreateDimensioningView, "viewType")
			}
			bundle, err := prepareArtifacts(artifactDir)
			if err != nil {
				return nil, err
			}

			params := maps.Clone(map[string]any(args))
			params["geomPath"] = bundle.GeometryPath
			params["imgPath"] = bundle.ImagePath
			params["donePath"] = bundle.ReadyMarkerPath

			start := time.Now()
			res, err := c.Run(ctx, CmdStdViewDim, params)
			if err != nil {
				return nil, err
			}
			if res.ExitCode != 0 && res.ExitCode != 1 {
				return resultEnvelope(res), nil
			}

			bundle.StatusCode = res.ExitCode
			defaultMarker := bundle.ReadyMarkerPath
			overrideFromStdout(&bundle, res.Stdout)
			if bundle.ReadyMarkerPath != defaultMarker {
				if err := removeStaleMarker(bundle.ReadyMarkerPath, start); err != nil {
					return nil, err
				}
			}
			data := resultData(res)
			maps.Copy(data, bundle.Data())
			return cadagent.Success(data), nil
		},
	}
}

// prepareArtifacts picks the artifact paths and removes a marker left over
// from an earlier run.
func prepareArtifacts(dir string) (artifact.Bundle, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "cadagent")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return artifact.Bundle{}, fmt.Errorf("prepare artifact dir: %w", err)
	}
	b := artifact.Bundle{
		GeometryPath:    filepath.Join(dir, GeometryFile),
		ImagePath:       filepath.Join(dir, ImageFile),
		ReadyMarkerPath: filepath.Join(dir, MarkerFile),
	}
	if err := os.Remove(b.ReadyMarkerPath); err != nil && !os.IsNotExist(err) {
		return artifact.Bundle{}, fmt.Errorf("remove stale marker: %w", err)
	}
	return b, nil
}

// removeStaleMarker deletes the marker at path if it was last written before
// the run that reported it started. Modification times are compared at
// whole-second resolution since some filesystems store no finer.
func removeStaleMarker(path string, start time.Time) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat marker: %w", err)
	}
	if !info.ModTime().Before(start.Truncate(time.Second)) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale marker: %w", err)
	}
	return nil
}

// overrideFromStdout lets the CAD program report where it actually wrote
// the artifacts.
func overrideFromStdout(b *artifact.Bundle, stdout string) {
	if !gjson.Valid(stdout) {
		return
	}
	pick := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := gjson.Get(stdout, k); v.Type == gjson.String && v.String() != "" {
				*dst = v.String()
				return
			}
		}
	}
	pick(&b.GeometryPath, artifact.KeyGeometryPath, "geom_data")
	pick(&b.ImagePath, artifact.KeyImagePath, "img_path")
	pick(&b.ReadyMarkerPath, artifact.KeyReadyMarkerPath, "done_path")
}
