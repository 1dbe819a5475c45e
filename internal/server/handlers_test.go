package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/omr-eval/internal/omr"
	"github.com/ironsheep/omr-eval/internal/sheetgen"
)

// createTestImageFile writes img as PNG into a temp dir and returns its path.
func createTestImageFile(t *testing.T, img image.Image) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sheet.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// createSheetPhoto renders a sheet with every question answered by choice
// and centres it on a dark backdrop.
func createSheetPhoto(t *testing.T, cfg omr.GridConfig, choice int, opts sheetgen.Options) string {
	t.Helper()

	answers := make([][]int, len(cfg.Subjects))
	for s := range answers {
		answers[s] = make([]int, cfg.QuestionsPerSubject)
		for q := range answers[s] {
			answers[s][q] = choice
		}
	}
	opts.Marks = sheetgen.MarksFor(answers)
	sheet, err := sheetgen.Render(cfg, opts)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	b := sheet.Bounds()
	img, err := sheetgen.Centered(sheet, sheetgen.Frame{Width: b.Dx() + 160, Height: b.Dy() + 160, Background: 60})
	if err != nil {
		t.Fatalf("Centered failed: %v", err)
	}
	return createTestImageFile(t, img)
}

// uniformKeyCSV answers every question with letter.
func uniformKeyCSV(cfg omr.GridConfig, letter string) string {
	var b strings.Builder
	b.WriteString(strings.Join(cfg.Subjects, ","))
	b.WriteString("\n")
	row := strings.TrimSuffix(strings.Repeat(letter+",", len(cfg.Subjects)), ",")
	for q := 0; q < cfg.QuestionsPerSubject; q++ {
		b.WriteString(row)
		b.WriteString("\n")
	}
	return b.String()
}

func callTool(t *testing.T, s *Server, name string, args interface{}) (map[string]interface{}, *MCPError) {
	t.Helper()

	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("bad args: %v", err)
	}
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: raw})
	resp := s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp.Error != nil {
		return nil, resp.Error
	}

	content := resp.Result.(map[string]interface{})["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("unexpected content: %v", content)
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), &out); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	return out, nil
}

func mustCallTool(t *testing.T, s *Server, name string, args interface{}) map[string]interface{} {
	t.Helper()
	out, e := callTool(t, s, name, args)
	if e != nil {
		t.Fatalf("%s failed: %s (%v)", name, e.Message, e.Data)
	}
	return out
}

func TestHandleToolsCall_LoadKeyInline(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()

	out := mustCallTool(t, s, "omr_load_key", map[string]interface{}{"csv": uniformKeyCSV(cfg, "B")})

	if out["name"] != defaultKeyName {
		t.Errorf("name: got %v", out["name"])
	}
	if out["default"] != "A" {
		t.Errorf("default variant: got %v, want A", out["default"])
	}
	ks, err := s.keySet("")
	if err != nil {
		t.Fatalf("key not stored: %v", err)
	}
	if a, _ := ks.Default().Answer("MySQL", 3); a != 1 {
		t.Errorf("MySQL Q4: got %d, want 1", a)
	}
}

func TestHandleToolsCall_LoadKeyFiles(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	if err := os.WriteFile(a, []byte(uniformKeyCSV(cfg, "A")), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte(uniformKeyCSV(cfg, "C")), 0o644); err != nil {
		t.Fatal(err)
	}

	out := mustCallTool(t, s, "omr_load_key", map[string]interface{}{
		"name":  "midterm",
		"files": []map[string]string{{"path": a}, {"variant": "B", "path": b}},
	})

	variants := out["variants"].([]interface{})
	if len(variants) != 2 || variants[0] != "A" || variants[1] != "B" {
		t.Errorf("variants: got %v", variants)
	}
	if _, err := s.keySet("midterm"); err != nil {
		t.Errorf("key set not stored: %v", err)
	}
}

func TestHandleToolsCall_LoadKeyErrors(t *testing.T) {
	s := New(Options{})

	tests := []struct {
		name string
		args map[string]interface{}
		kind string
	}{
		{"nothing", map[string]interface{}{}, "unknown"},
		{"short csv", map[string]interface{}{"csv": "Python,Data Analysis,MySQL,Power BI,Statistics\nA,A,A,A,A\n"}, "invalid_key"},
		{"missing file", map[string]interface{}{"files": []map[string]string{{"path": "/nonexistent/key.csv"}}}, "io"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, e := callTool(t, s, "omr_load_key", tt.args)
			if e == nil {
				t.Fatal("expected an error")
			}
			if e.Code != -32000 {
				t.Errorf("Code: got %d, want -32000", e.Code)
			}
			if data, _ := e.Data.(string); !strings.HasPrefix(data, tt.kind+":") {
				t.Errorf("Data: got %q, want kind %s", data, tt.kind)
			}
		})
	}
}

func TestHandleToolsCall_Evaluate(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()
	mustCallTool(t, s, "omr_load_key", map[string]interface{}{"csv": uniformKeyCSV(cfg, "A")})
	path := createSheetPhoto(t, cfg, 0, sheetgen.Options{})

	out := mustCallTool(t, s, "omr_evaluate", map[string]interface{}{"path": path, "student": "Asha"})

	report := out["report"].(map[string]interface{})
	if report["total"] != float64(100) || report["max_total"] != float64(100) {
		t.Errorf("total: got %v/%v, want 100/100", report["total"], report["max_total"])
	}
	if out["student"] != "Asha" {
		t.Errorf("student: got %v", out["student"])
	}
	img := out["image"].(map[string]interface{})
	if img["format"] != "png" {
		t.Errorf("image format: got %v", img["format"])
	}
	if _, ok := out["debug"]; ok {
		t.Error("debug should be omitted unless requested")
	}
}

func TestHandleToolsCall_EvaluateDebugAndPenalty(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()
	mustCallTool(t, s, "omr_load_key", map[string]interface{}{"csv": uniformKeyCSV(cfg, "B")})
	path := createSheetPhoto(t, cfg, 0, sheetgen.Options{})

	out := mustCallTool(t, s, "omr_evaluate", map[string]interface{}{
		"path":          path,
		"debug":         true,
		"wrong_penalty": 0.25,
	})

	report := out["report"].(map[string]interface{})
	if report["total"] != float64(0) {
		t.Errorf("total: got %v, want 0", report["total"])
	}
	if report["net"] != float64(-25) {
		t.Errorf("net: got %v, want -25", report["net"])
	}
	if out["student"] != "sheet" {
		t.Errorf("student should default to the file name, got %v", out["student"])
	}

	debug, ok := out["debug"].(map[string]interface{})
	if !ok {
		t.Fatal("debug missing")
	}
	overlay := debug["overlay"].(map[string]interface{})
	if overlay["mime_type"] != "image/png" || overlay["image_base64"] == "" {
		t.Errorf("overlay: got %v", overlay["mime_type"])
	}
	if scores := debug["fill_scores"].([]interface{}); len(scores) != cfg.TotalQuestions()*cfg.Choices {
		t.Errorf("fill_scores: got %d", len(scores))
	}
}

func TestHandleToolsCall_EvaluateInline(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()
	mustCallTool(t, s, "omr_load_key", map[string]interface{}{"csv": uniformKeyCSV(cfg, "C")})
	data, err := os.ReadFile(createSheetPhoto(t, cfg, 2, sheetgen.Options{}))
	if err != nil {
		t.Fatal(err)
	}

	out := mustCallTool(t, s, "omr_evaluate", map[string]interface{}{"image_base64": base64.StdEncoding.EncodeToString(data)})

	report := out["report"].(map[string]interface{})
	if report["total"] != float64(100) {
		t.Errorf("total: got %v, want 100", report["total"])
	}
	if out["student"] != "Student_1" {
		t.Errorf("student: got %v, want Student_1", out["student"])
	}
	if img := out["image"].(map[string]interface{}); img["format"] != "inline" {
		t.Errorf("format: got %v", img["format"])
	}

	if _, e := callTool(t, s, "omr_evaluate", map[string]interface{}{"image_base64": "%%%"}); e == nil {
		t.Error("expected error for bad base64")
	}
}

func TestHandleToolsCall_EvaluateErrors(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()
	sheet := createSheetPhoto(t, cfg, 0, sheetgen.Options{})

	if _, e := callTool(t, s, "omr_evaluate", map[string]interface{}{"path": sheet}); e == nil {
		t.Error("expected error without a loaded key")
	} else if !strings.HasPrefix(e.Data.(string), "invalid_key:") {
		t.Errorf("Data: got %v", e.Data)
	}

	mustCallTool(t, s, "omr_load_key", map[string]interface{}{"csv": uniformKeyCSV(cfg, "A")})

	blank := image.NewGray(image.Rect(0, 0, 400, 300))
	for i := range blank.Pix {
		blank.Pix[i] = 128
	}
	flat := createTestImageFile(t, blank)

	tests := []struct {
		name string
		args map[string]interface{}
		kind string
	}{
		{"no path", map[string]interface{}{}, "unknown"},
		{"missing file", map[string]interface{}{"path": "/nonexistent/sheet.png"}, "io"},
		{"no sheet", map[string]interface{}{"path": flat}, "geometry"},
		{"unknown variant", map[string]interface{}{"path": sheet, "variant": "Z"}, "invalid_key"},
		{"save without store", map[string]interface{}{"path": sheet, "save": true}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, e := callTool(t, s, "omr_evaluate", tt.args)
			if e == nil {
				t.Fatal("expected an error")
			}
			if data, _ := e.Data.(string); !strings.HasPrefix(data, tt.kind+":") {
				t.Errorf("Data: got %q, want kind %s", data, tt.kind)
			}
		})
	}
}

func TestHandleToolsCall_EvaluateBatch(t *testing.T) {
	s := New(Options{Workers: 2})
	cfg := omr.DefaultGridConfig()
	mustCallTool(t, s, "omr_load_key", map[string]interface{}{"csv": uniformKeyCSV(cfg, "A")})

	good := createSheetPhoto(t, cfg, 0, sheetgen.Options{})
	wrong := createSheetPhoto(t, cfg, 2, sheetgen.Options{})

	out := mustCallTool(t, s, "omr_evaluate_batch", map[string]interface{}{
		"paths": []string{good, "/nonexistent/sheet.png", wrong},
		"name":  "Class7",
	})

	items := out["items"].([]interface{})
	if len(items) != 3 {
		t.Fatalf("items: got %d, want 3", len(items))
	}
	second := items[1].(map[string]interface{})
	if second["kind"] != "io" {
		t.Errorf("missing file kind: got %v", second["kind"])
	}
	third := items[2].(map[string]interface{})
	if third["student"] != "Class7_3" {
		t.Errorf("student: got %v", third["student"])
	}

	stats := out["stats"].(map[string]interface{})
	if stats["evaluated"] != float64(2) || stats["failed"] != float64(1) {
		t.Errorf("stats: got %v", stats)
	}
	if stats["highest_total"] != float64(100) || stats["lowest_total"] != float64(0) {
		t.Errorf("extremes: got %v/%v", stats["highest_total"], stats["lowest_total"])
	}
	if out["run_id"] == "" {
		t.Error("run_id missing")
	}
}

func TestHandleToolsCall_EvaluateBatchDirectory(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()
	mustCallTool(t, s, "omr_load_key", map[string]interface{}{"csv": uniformKeyCSV(cfg, "A")})
	path := createSheetPhoto(t, cfg, 0, sheetgen.Options{})

	out := mustCallTool(t, s, "omr_evaluate_batch", map[string]interface{}{"directory": filepath.Dir(path)})

	if items := out["items"].([]interface{}); len(items) != 1 {
		t.Fatalf("items: got %d, want 1", len(items))
	}
	if s.cache.Len() != 0 {
		t.Errorf("batch sheets should leave the cache, %d remain", s.cache.Len())
	}

	if _, e := callTool(t, s, "omr_evaluate_batch", map[string]interface{}{"directory": t.TempDir()}); e == nil {
		t.Error("expected error for an empty directory")
	}
}

func TestHandleToolsCall_Rectify(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()
	path := createSheetPhoto(t, cfg, 0, sheetgen.Options{})

	out := mustCallTool(t, s, "omr_rectify", map[string]interface{}{"path": path})
	if out["width"] != float64(cfg.Width) || out["height"] != float64(cfg.Height) {
		t.Errorf("size: got %vx%v", out["width"], out["height"])
	}
	if out["flipped"] != false {
		t.Error("upright sheet reported flipped")
	}

	out = mustCallTool(t, s, "omr_rectify", map[string]interface{}{"path": path, "region": "header", "scale": 0.5})
	if out["width"] != float64(cfg.Width/2) {
		t.Errorf("header width: got %v, want %d", out["width"], cfg.Width/2)
	}

	if _, e := callTool(t, s, "omr_rectify", map[string]interface{}{"path": path, "region": "footer"}); e == nil {
		t.Error("expected error for unknown region")
	}
}

func TestHandleToolsCall_GridOverlay(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()
	path := createSheetPhoto(t, cfg, 3, sheetgen.Options{})

	out := mustCallTool(t, s, "omr_grid_overlay", map[string]interface{}{"path": path})

	if out["matched_anchors"] != float64(len(cfg.Anchors)) {
		t.Errorf("matched_anchors: got %v", out["matched_anchors"])
	}
	subjects := out["subjects"].([]interface{})
	if len(subjects) != len(cfg.Subjects) {
		t.Fatalf("subjects: got %d", len(subjects))
	}
	for _, sub := range subjects {
		for _, a := range sub.(map[string]interface{})["answers"].([]interface{}) {
			if a != "D" {
				t.Errorf("answer: got %v, want D", a)
			}
		}
	}
}

func TestHandleToolsCall_RenderSheet(t *testing.T) {
	s := New(Options{})
	cfg := omr.DefaultGridConfig()

	out := mustCallTool(t, s, "omr_render_sheet", map[string]interface{}{"set_label": "B", "sheet_id": "ROLL-3"})
	if out["width"] != float64(cfg.Width) || out["image_base64"] == "" {
		t.Errorf("inline render: got width %v", out["width"])
	}

	dest := filepath.Join(t.TempDir(), "blank.png")
	out = mustCallTool(t, s, "omr_render_sheet", map[string]interface{}{"output_path": dest})
	if out["output_path"] != dest {
		t.Errorf("output_path: got %v", out["output_path"])
	}
	if _, ok := out["image_base64"]; ok && out["image_base64"] != "" {
		t.Error("image should not be inlined when saved")
	}
	f, err := os.Open(dest)
	if err != nil {
		t.Fatalf("sheet not written: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("written sheet is not a PNG: %v", err)
	}
}

func TestHandleToolsCall_ResultsWithoutStore(t *testing.T) {
	s := New(Options{})
	_, e := callTool(t, s, "omr_results", map[string]interface{}{"action": "count"})
	if e == nil {
		t.Fatal("expected error without a database")
	}
	if !strings.Contains(e.Data.(string), "OMR_DATABASE_URL") {
		t.Errorf("Data: got %v", e.Data)
	}
}

func TestHandleToolsCall_InvalidTool(t *testing.T) {
	s := New(Options{})
	_, e := callTool(t, s, "image_load", map[string]interface{}{})
	if e == nil {
		t.Fatal("expected error for unknown tool")
	}
	if e.Code != -32000 {
		t.Errorf("Code: got %d, want -32000", e.Code)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New(Options{})
	resp := s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Params: []byte(`not json`)})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602, got %+v", resp.Error)
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := New(Options{})
	for _, tool := range GetToolDefinitions() {
		if _, err := s.executeTool(context.Background(), tool.Name, []byte(`{bad`)); err == nil {
			t.Errorf("%s: expected error for invalid JSON", tool.Name)
		}
	}
}

func TestCreateTestImageFile(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	path := createTestImageFile(t, img)
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}
